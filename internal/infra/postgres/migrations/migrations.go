package migrations

import "github.com/uptrace/bun/migrate"

// Migrations holds the schema of the authoring tables the live game reads from.
var Migrations = migrate.NewMigrations()
