// Package migrations embeds the bridge's SQL schema migrations so the
// binary carries its own schema and needs no SQL files on disk.
package migrations

import (
	"embed"

	"github.com/nerrad567/gray-logic-shelly/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "." // files sit at the root of the embedded FS
}
