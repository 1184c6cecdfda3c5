// Package migrations embeds the route store schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
