package main

import (
	"fmt"

	"github.com/custodia-labs/fraktag/internal/core/domain"
	"github.com/custodia-labs/fraktag/internal/core/services"
	"github.com/custodia-labs/fraktag/internal/logger"
	"github.com/custodia-labs/fraktag/internal/postprocessors"
)

// liveSettings pushes a reloaded configuration into the running services.
// Storage and provider settings are bound when the process starts and only
// change on restart.
type liveSettings struct {
	current   domain.Settings
	registry  *postprocessors.Registry
	pipeline  *postprocessors.Pipeline
	oracle    *services.OracleService
	ingestion *services.IngestionService
	navigator *services.Navigator
}

// apply installs next and reports whether some of it needs a restart.
// An invalid chunking configuration leaves every service unchanged.
func (l *liveSettings) apply(next domain.Settings) (restart bool, err error) {
	pipeline, err := postprocessors.BuildPipeline(l.registry, next.Ingestion)
	if err != nil {
		return false, fmt.Errorf("build chunking pipeline: %w", err)
	}
	l.pipeline.Replace(pipeline)
	l.ingestion.UpdateSettings(next.Ingestion)
	l.navigator.UpdateSettings(next.Retrieval)
	l.oracle.SetTimeout(next.Oracle.Timeout)

	restart = next.Storage != l.current.Storage ||
		!sameProvider(next.Oracle, l.current.Oracle) ||
		!sameProvider(next.Embedding, l.current.Embedding)
	l.current.Ingestion = next.Ingestion
	l.current.Retrieval = next.Retrieval
	l.current.Oracle.Timeout = next.Oracle.Timeout
	return restart, nil
}

// sameProvider compares the parts of a capability that are wired at start.
func sameProvider(a, b domain.CapabilitySettings) bool {
	a.Timeout, b.Timeout = 0, 0
	return a == b
}

// reload reads the settings again and applies them.
func (l *liveSettings) reload(settings *services.SettingsService) {
	next, err := settings.Get()
	if err != nil {
		logger.Warn("Keeping previous settings: %v", err)
		return
	}
	restart, err := l.apply(*next)
	if err != nil {
		logger.Warn("Keeping previous settings: %v", err)
		return
	}
	logger.Info("Applied ingestion and retrieval settings")
	if restart {
		logger.Warn("Storage and provider changes apply on the next start")
	}
}
