// Package migrations embeds the SQL schema migrations so the server
// binary can apply them on startup without a separate artifact.
package migrations

import "embed"

// FS holds the embedded migration files.
//
//go:embed *.sql
var FS embed.FS
