package services

import (
	"time"

	"github.com/custodia-labs/fraktag/internal/core/ports/driven"
)

// NopMetrics discards every measurement.
type NopMetrics struct{}

var _ driven.Metrics = NopMetrics{}

func (NopMetrics) ObserveOracleCall(string, string, time.Duration) {}
func (NopMetrics) ObserveEmbedding(string, int, time.Duration) {}
func (NopMetrics) IncIngested(string) {}
func (NopMetrics) ObserveRetrieval(time.Duration, int, int) {}
func (NopMetrics) SetIndexEntries(string, int) {}
