// Package migrations embeds the Postgres schema so the server and cmd/migrate
// apply the same files.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
