// Package migrations holds the goose schema migrations.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
