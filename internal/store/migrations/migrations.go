// Package migrations embeds the SQL schema migrations for the durable
// local store.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
