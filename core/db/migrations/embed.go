// Package migrations embeds the ordered schema change files.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
