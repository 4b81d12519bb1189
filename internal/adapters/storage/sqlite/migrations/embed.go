package migrations

import "embed"

// FS contains embedded SQLite migrations for brandlab storage.
//
//go:embed *.sql
var FS embed.FS
