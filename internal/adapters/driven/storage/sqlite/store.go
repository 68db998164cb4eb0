package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/corvid-labs/fieldlaw/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/corvid-labs/fieldlaw/internal/core/domain"
	"github.com/corvid-labs/fieldlaw/internal/core/ports/driven"
)

// Store is a unified SQLite-based storage that provides the sample and
// result store interfaces through wrapper types sharing one connection.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.fieldlaw/data/discovery.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".fieldlaw", "data")
	}

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "discovery.db")

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	// Run migrations
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// SampleStore returns a sample store backed by this store.
func (s *Store) SampleStore() *SampleStore {
	return &SampleStore{store: s}
}

// ResultStore returns a result store backed by this store.
func (s *Store) ResultStore() *ResultStore {
	return &ResultStore{store: s}
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	// Create migrations table if not exists
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	// Read migration files
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort up migrations
	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	// Apply pending migrations
	for _, name := range upFiles {
		// Extract version from filename (e.g., "001_initial.up.sql" -> 1)
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}

		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Sample Store ====================

// SampleStore persists named datasets of field samples.
type SampleStore struct {
	store *Store
}

var _ driven.SampleStore = (*SampleStore)(nil)

// AddDataset stores a named dataset, replacing any samples previously
// stored under the same name.
func (s *SampleStore) AddDataset(ctx context.Context, name string, samples []domain.Sample) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO datasets (name, sample_count, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			sample_count = excluded.sample_count
	`, name, len(samples), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving dataset: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM samples WHERE dataset = ?", name); err != nil {
		return fmt.Errorf("clearing samples: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO samples (dataset, position, coordinates, value, derivatives, noise)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for i, sample := range samples {
		coordsJSON, err := json.Marshal(sample.Coordinates)
		if err != nil {
			return fmt.Errorf("marshalling coordinates: %w", err)
		}
		derivsJSON, err := json.Marshal(sample.Derivatives)
		if err != nil {
			return fmt.Errorf("marshalling derivatives: %w", err)
		}

		if _, err := stmt.ExecContext(ctx, name, i, string(coordsJSON),
			sample.Value, string(derivsJSON), sample.Noise); err != nil {
			return fmt.Errorf("saving sample %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// LoadSamples returns the samples of a dataset in insertion order.
func (s *SampleStore) LoadSamples(ctx context.Context, datasetID string) ([]domain.Sample, error) {
	var count int
	err := s.store.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM datasets WHERE name = ?", datasetID).Scan(&count)
	if err != nil {
		return nil, fmt.Errorf("checking dataset: %w", err)
	}
	if count == 0 {
		return nil, domain.ErrDatasetNotFound
	}

	rows, err := s.store.db.QueryContext(ctx, `
		SELECT coordinates, value, derivatives, noise
		FROM samples
		WHERE dataset = ?
		ORDER BY position
	`, datasetID)
	if err != nil {
		return nil, fmt.Errorf("querying samples: %w", err)
	}
	defer rows.Close()

	var samples []domain.Sample //nolint:prealloc // size unknown from query
	for rows.Next() {
		var coordsJSON, derivsJSON string
		var sample domain.Sample
		if err := rows.Scan(&coordsJSON, &sample.Value, &derivsJSON, &sample.Noise); err != nil {
			return nil, fmt.Errorf("scanning sample: %w", err)
		}

		if err := json.Unmarshal([]byte(coordsJSON), &sample.Coordinates); err != nil {
			return nil, fmt.Errorf("unmarshaling coordinates: %w", err)
		}
		if err := json.Unmarshal([]byte(derivsJSON), &sample.Derivatives); err != nil {
			return nil, fmt.Errorf("unmarshaling derivatives: %w", err)
		}
		samples = append(samples, sample)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating samples: %w", err)
	}

	return samples, nil
}

// ==================== Result Store ====================

// ResultStore persists discovery run results.
type ResultStore struct {
	store *Store
}

var _ driven.ResultStore = (*ResultStore)(nil)

// SaveResult stores or updates a run result keyed by its run ID. The
// first-save timestamp survives updates so run listings keep their order.
func (r *ResultStore) SaveResult(ctx context.Context, result *domain.DiscoveryResult) error {
	if result.RunID == "" {
		return fmt.Errorf("%w: result has no run ID", domain.ErrConfiguration)
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshalling result: %w", err)
	}

	bestFormula := ""
	if best := result.Ranked.Best(); best != nil {
		bestFormula = best.Formula
	}

	_, err = r.store.db.ExecContext(ctx, `
		INSERT INTO runs (id, target_name, state, best_formula, result, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			target_name = excluded.target_name,
			state = excluded.state,
			best_formula = excluded.best_formula,
			result = excluded.result
	`, result.RunID, result.TargetName, result.State.String(),
		bestFormula, string(resultJSON), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving run: %w", err)
	}

	return nil
}

// GetResult retrieves a run result by ID.
func (r *ResultStore) GetResult(ctx context.Context, runID string) (*domain.DiscoveryResult, error) {
	row := r.store.db.QueryRowContext(ctx,
		"SELECT result FROM runs WHERE id = ?", runID)

	var resultJSON string
	if err := row.Scan(&resultJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrRunNotFound
		}
		return nil, fmt.Errorf("scanning run: %w", err)
	}

	var result domain.DiscoveryResult
	if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
		return nil, fmt.Errorf("unmarshaling result: %w", err)
	}

	return &result, nil
}

// ListRuns returns summary records for all stored runs, newest first.
func (r *ResultStore) ListRuns(ctx context.Context) ([]domain.RunRecord, error) {
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT id, target_name, best_formula, state, created_at
		FROM runs
		ORDER BY created_at DESC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var records []domain.RunRecord //nolint:prealloc // size unknown from query
	for rows.Next() {
		var rec domain.RunRecord
		var state string
		var createdAt sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.TargetName, &rec.BestFormula, &state, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		rec.State = domain.ParseRunState(state)
		if createdAt.Valid {
			rec.CreatedAt = createdAt.Time
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}

	return records, nil
}
