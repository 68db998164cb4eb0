// Package migrations embeds the SQL schema migrations for the SQLite store.
package migrations

import "embed"

// FS holds the migration files embedded at compile time. The store applies
// them in lexical order on startup.
//
//go:embed *.sql
var FS embed.FS
