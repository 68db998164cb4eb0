// Package sqlite provides a SQLite-backed implementation of the storage
// driven ports.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that
// requires no CGO, enabling easy cross-compilation. It implements both store
// interfaces through a single database connection:
//
//   - SampleStore: named sample dataset persistence
//   - ResultStore: discovery run result persistence
//
// Samples keep their coordinates and derivative maps as JSON columns; run
// results are stored whole as JSON alongside a few indexed summary columns
// (state, best formula, creation time) so listings never unmarshal full
// results.
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory and applied automatically when the store opens.
//
// # Data Location
//
// By default, the database is stored at ~/.fieldlaw/data/discovery.db
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking
// provided by SQLite in WAL mode.
package sqlite
