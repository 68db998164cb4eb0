package file

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/corvid-labs/fieldlaw/internal/core/domain"
	"github.com/corvid-labs/fieldlaw/internal/core/ports/driven"
)

// Ensure ConfigStore implements the interface.
var _ driven.ConfigStore = (*ConfigStore)(nil)

// ConfigStore is a file-based implementation of driven.ConfigStore using TOML.
// Loading merges the file over the package defaults, so a partial file only
// overrides the keys it names and a missing file yields the defaults.
//
// Custom library terms carry evaluation functions and are not representable
// in TOML; Save ignores them and Load never produces any.
type ConfigStore struct {
	mu       sync.Mutex
	filePath string
}

// NewConfigStore creates a new TOML-based config store.
// If configDir is empty, defaults to ~/.fieldlaw/config.toml.
func NewConfigStore(configDir string) (*ConfigStore, error) {
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		configDir = filepath.Join(home, ".fieldlaw")
	}

	// Ensure directory exists
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, err
	}

	s := &ConfigStore{
		filePath: filepath.Join(configDir, "config.toml"),
	}

	// Surface a corrupt config file at construction, not mid-run
	if _, err := s.Load(); err != nil {
		return nil, err
	}

	return s, nil
}

// Load reads the configuration, merging the file over the defaults.
// A missing file yields the defaults, not an error.
func (s *ConfigStore) Load() (domain.DiscoveryConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	defaults := domain.DefaultConfig()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return defaults, nil
		}
		return domain.DiscoveryConfig{}, fmt.Errorf("reading config: %w", err)
	}

	// Unmarshalling over the defaults leaves absent keys untouched
	fc := fromDomain(defaults)
	if err := toml.Unmarshal(data, &fc); err != nil {
		return domain.DiscoveryConfig{}, fmt.Errorf("parsing %s: %w", s.filePath, err)
	}

	return fc.toDomain()
}

// Save persists the configuration to the TOML file.
func (s *ConfigStore) Save(cfg domain.DiscoveryConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := toml.Marshal(fromDomain(cfg))
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	// Write with restricted permissions
	return os.WriteFile(s.filePath, data, 0600)
}

// Path returns the configuration file path.
func (s *ConfigStore) Path() string {
	return s.filePath
}

// fileConfig is the TOML schema. It mirrors domain.DiscoveryConfig with
// snake_case keys and the symbolic budget as a duration string.
type fileConfig struct {
	TargetName string `toml:"target_name"`
	FieldName  string `toml:"field_name"`
	Seed       int64  `toml:"seed"`
	Workers    int    `toml:"workers"`

	Library     libraryConfig     `toml:"library"`
	Sparse      sparseConfig      `toml:"sparse"`
	Symbolic    symbolicConfig    `toml:"symbolic"`
	Uncertainty uncertaintyConfig `toml:"uncertainty"`
}

type libraryConfig struct {
	Linear                bool    `toml:"linear"`
	PolynomialDegree      int     `toml:"polynomial_degree"`
	CrossTerms            bool    `toml:"cross_terms"`
	IncludeConstant       bool    `toml:"include_constant"`
	CollinearityTolerance float64 `toml:"collinearity_tolerance"`
}

type sparseConfig struct {
	Threshold     float64 `toml:"threshold"`
	Ridge         float64 `toml:"ridge"`
	MaxIterations int     `toml:"max_iterations"`
}

type symbolicConfig struct {
	Enabled            bool     `toml:"enabled"`
	PopulationSize     int      `toml:"population_size"`
	Generations        int      `toml:"generations"`
	PlateauGenerations int      `toml:"plateau_generations"`
	MaxComplexity      int      `toml:"max_complexity"`
	Parsimony          float64  `toml:"parsimony"`
	UnaryOps           []string `toml:"unary_ops"`
	TopK               int      `toml:"top_k"`
	Budget             string   `toml:"budget"`
}

type uncertaintyConfig struct {
	Enabled   bool `toml:"enabled"`
	Resamples int  `toml:"resamples"`
}

func fromDomain(cfg domain.DiscoveryConfig) fileConfig {
	return fileConfig{
		TargetName: cfg.TargetName,
		FieldName:  cfg.FieldName,
		Seed:       cfg.Seed,
		Workers:    cfg.Workers,
		Library: libraryConfig{
			Linear:                cfg.Library.Linear,
			PolynomialDegree:      cfg.Library.PolynomialDegree,
			CrossTerms:            cfg.Library.CrossTerms,
			IncludeConstant:       cfg.Library.IncludeConstant,
			CollinearityTolerance: cfg.Library.CollinearityTolerance,
		},
		Sparse: sparseConfig{
			Threshold:     cfg.Sparse.Threshold,
			Ridge:         cfg.Sparse.Ridge,
			MaxIterations: cfg.Sparse.MaxIterations,
		},
		Symbolic: symbolicConfig{
			Enabled:            cfg.Symbolic.Enabled,
			PopulationSize:     cfg.Symbolic.PopulationSize,
			Generations:        cfg.Symbolic.Generations,
			PlateauGenerations: cfg.Symbolic.PlateauGenerations,
			MaxComplexity:      cfg.Symbolic.MaxComplexity,
			Parsimony:          cfg.Symbolic.Parsimony,
			UnaryOps:           cfg.Symbolic.UnaryOps,
			TopK:               cfg.Symbolic.TopK,
			Budget:             cfg.Symbolic.Budget.String(),
		},
		Uncertainty: uncertaintyConfig{
			Enabled:   cfg.Uncertainty.Enabled,
			Resamples: cfg.Uncertainty.Resamples,
		},
	}
}

func (f fileConfig) toDomain() (domain.DiscoveryConfig, error) {
	var budget time.Duration
	if f.Symbolic.Budget != "" {
		d, err := time.ParseDuration(f.Symbolic.Budget)
		if err != nil {
			return domain.DiscoveryConfig{}, fmt.Errorf("%w: symbolic budget %q: %v",
				domain.ErrConfiguration, f.Symbolic.Budget, err)
		}
		budget = d
	}

	return domain.DiscoveryConfig{
		TargetName: f.TargetName,
		FieldName:  f.FieldName,
		Seed:       f.Seed,
		Workers:    f.Workers,
		Library: domain.LibraryConfig{
			Linear:                f.Library.Linear,
			PolynomialDegree:      f.Library.PolynomialDegree,
			CrossTerms:            f.Library.CrossTerms,
			IncludeConstant:       f.Library.IncludeConstant,
			CollinearityTolerance: f.Library.CollinearityTolerance,
		},
		Sparse: domain.SparseConfig{
			Threshold:     f.Sparse.Threshold,
			Ridge:         f.Sparse.Ridge,
			MaxIterations: f.Sparse.MaxIterations,
		},
		Symbolic: domain.SymbolicConfig{
			Enabled:            f.Symbolic.Enabled,
			PopulationSize:     f.Symbolic.PopulationSize,
			Generations:        f.Symbolic.Generations,
			PlateauGenerations: f.Symbolic.PlateauGenerations,
			MaxComplexity:      f.Symbolic.MaxComplexity,
			Parsimony:          f.Symbolic.Parsimony,
			UnaryOps:           f.Symbolic.UnaryOps,
			TopK:               f.Symbolic.TopK,
			Budget:             budget,
		},
		Uncertainty: domain.UncertaintyConfig{
			Enabled:   f.Uncertainty.Enabled,
			Resamples: f.Uncertainty.Resamples,
		},
	}, nil
}
