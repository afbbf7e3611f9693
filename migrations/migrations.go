// Package migrations embeds the SQL schema applied by `exchangeflow migrate` and the test harness.
package migrations

import "embed"

// FS holds the *.sql files, applied in lexical order.
//
//go:embed *.sql
var FS embed.FS
