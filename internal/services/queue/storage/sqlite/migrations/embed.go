package migrations

import "embed"

// FS contains embedded SQLite migrations for queue storage.
//
//go:embed *.sql
var FS embed.FS
