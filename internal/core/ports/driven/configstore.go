package driven

import "github.com/corvid-labs/fieldlaw/internal/core/domain"

// ConfigStore provides access to persisted run configuration.
// Implementations handle storage (e.g., TOML files) and defaulting: absent
// keys fall back to domain.DefaultConfig values.
type ConfigStore interface {
	// Load reads the configuration from storage. A missing file yields the
	// defaults, not an error.
	Load() (domain.DiscoveryConfig, error)

	// Save persists the configuration to storage.
	Save(cfg domain.DiscoveryConfig) error

	// Path returns the configuration file path.
	Path() string
}
