// Package migrations embeds the SQL migration files into the binary so the
// event store can be created without the files present on disk.
package migrations

import "embed"

// Dir is the directory within FS that holds the migration files.
const Dir = "."

// FS holds every *.sql file in this directory.
//
//go:embed *.sql
var FS embed.FS
