// Package migrations embeds the SQL schema files so the binary carries
// its own migrations and tests need no path juggling.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
