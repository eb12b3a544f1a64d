package driving

import "github.com/custodia-labs/fraktag/internal/core/domain"

// SettingsService manages application settings.
type SettingsService interface {
	// Get retrieves current application settings.
	Get() (*domain.Settings, error)

	// Set stores a single dotted configuration key.
	Set(key string, value any) error

	// Validate checks if current settings are usable.
	Validate() error

	// GetDefaults returns the default settings.
	GetDefaults() domain.Settings
}
