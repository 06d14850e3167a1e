// Package migrations embeds the pairing session store schema.
package migrations

import "embed"

// FS contains the SQL migration files applied at startup.
//
//go:embed *.sql
var FS embed.FS
