// Package migrations embeds the SQL schema into the binary and registers it
// with the database package. Import it for side effects from main.
package migrations

import (
	"embed"

	"github.com/nerrad567/caseta-bridge/internal/infrastructure/database"
)

//go:embed *.up.sql
var migrationsFS embed.FS

func init() {
	database.Migrations = migrationsFS
}
