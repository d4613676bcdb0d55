// Package migrations embeds the SQL migrations applied by db.RunMigrations.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
