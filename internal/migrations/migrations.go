package migrations

import "github.com/uptrace/bun/migrate"

// Migrations is the ordered collection applied by `consoleapi db migrate`.
var Migrations = migrate.NewMigrations()
