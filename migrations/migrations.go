// Package migrations embeds the goose SQL migrations for random_joke_api.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
