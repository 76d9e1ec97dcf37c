// Package migrations embeds the goose SQL migrations for the challenge schema.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
