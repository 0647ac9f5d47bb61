package migrations

import (
	"github.com/uptrace/bun/migrate"
)

// Migrations is a collection of migrations for this library
var Migrations = migrate.NewMigrations()
