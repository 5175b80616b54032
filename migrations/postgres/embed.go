// Package migrations embeds the SQL migrations of the identity store.
package migrations

import "embed"

// FS holds NNNN_name_up.sql / NNNN_name_down.sql pairs.
//
//go:embed *.sql
var FS embed.FS
