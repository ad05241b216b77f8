package migrations

import "embed"

// FS contains embedded SQLite migrations for the media index.
//
//go:embed *.sql
var FS embed.FS
