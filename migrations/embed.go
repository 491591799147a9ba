// Package migrations embeds the SQL schema for the postgres stores.
package migrations

import "embed"

// FS holds the up and down migrations, applied in file name order.
//
//go:embed *.sql
var FS embed.FS
