// Package metrics provides a Prometheus implementation of driven.Metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/custodia-labs/fraktag/internal/core/ports/driven"
	"github.com/custodia-labs/fraktag/internal/logger"
)

// Ensure Prometheus implements the interface.
var _ driven.Metrics = (*Prometheus)(nil)

const namespace = "fraktag"

// Prometheus records metrics on its own registry so tests and multiple
// instances never collide on the global one.
type Prometheus struct {
	registry *prometheus.Registry

	oracleCalls     *prometheus.CounterVec
	oracleDuration  *prometheus.HistogramVec
	embedBatches    *prometheus.CounterVec
	embedTexts      prometheus.Counter
	embedDuration   prometheus.Histogram
	ingested        *prometheus.CounterVec
	retrievals      prometheus.Counter
	retrievalTime   prometheus.Histogram
	retrievalHits   prometheus.Histogram
	retrievalVisits prometheus.Histogram
	indexEntries    *prometheus.GaugeVec
}

// New creates the collectors and registers them, along with the Go runtime
// and process collectors.
func New() *Prometheus {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Prometheus{
		registry: reg,
		oracleCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_calls_total",
			Help:      "Oracle calls by prompt and outcome.",
		}, []string{"prompt", "outcome"}),
		oracleDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "oracle_call_duration_seconds",
			Help:      "Oracle call latency by prompt.",
			Buckets:   []float64{.1, .25, .5, 1, 2, 4, 8, 16, 32, 64},
		}, []string{"prompt"}),
		embedBatches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_batches_total",
			Help:      "Embedding batches by outcome.",
		}, []string{"outcome"}),
		embedTexts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_texts_total",
			Help:      "Texts sent for embedding.",
		}),
		embedDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "embedding_duration_seconds",
			Help:      "Embedding batch latency.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		ingested: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nodes_ingested_total",
			Help:      "Nodes created by ingestion, by node type.",
		}, []string{"type"}),
		retrievals: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrievals_total",
			Help:      "Retrieval queries served.",
		}),
		retrievalTime: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_duration_seconds",
			Help:      "End-to-end retrieval latency.",
			Buckets:   []float64{.25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		retrievalHits: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_results",
			Help:      "Relevant nodes returned per query.",
			Buckets:   prometheus.LinearBuckets(0, 2, 11),
		}),
		retrievalVisits: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_visited_nodes",
			Help:      "Nodes visited per query.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		indexEntries: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "vector_index_entries",
			Help:      "Entries in each tree's vector index.",
		}, []string{"tree"}),
	}
}

// ObserveOracleCall records one oracle call.
func (p *Prometheus) ObserveOracleCall(prompt, outcome string, d time.Duration) {
	p.oracleCalls.WithLabelValues(prompt, outcome).Inc()
	p.oracleDuration.WithLabelValues(prompt).Observe(d.Seconds())
}

// ObserveEmbedding records one embedding batch.
func (p *Prometheus) ObserveEmbedding(outcome string, texts int, d time.Duration) {
	p.embedBatches.WithLabelValues(outcome).Inc()
	p.embedTexts.Add(float64(texts))
	p.embedDuration.Observe(d.Seconds())
}

// IncIngested counts a created node.
func (p *Prometheus) IncIngested(nodeType string) {
	p.ingested.WithLabelValues(nodeType).Inc()
}

// ObserveRetrieval records one query.
func (p *Prometheus) ObserveRetrieval(d time.Duration, results, visited int) {
	p.retrievals.Inc()
	p.retrievalTime.Observe(d.Seconds())
	p.retrievalHits.Observe(float64(results))
	p.retrievalVisits.Observe(float64(visited))
}

// SetIndexEntries reports a tree's index size.
func (p *Prometheus) SetIndexEntries(treeID string, n int) {
	p.indexEntries.WithLabelValues(treeID).Set(float64(n))
}

// Registry exposes the registry for gathering.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// Serve exposes /metrics and /healthz on addr until ctx is cancelled.
func (p *Prometheus) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", p.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Info("Serving metrics on %s/metrics", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
