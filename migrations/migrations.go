// Package migrations embeds the goose SQL migrations so the binaries do not
// depend on the working directory.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed *.sql
var FS embed.FS

// Dir is the directory goose reads from inside FS
const Dir = "."

// Up applies all pending migrations
func Up(db *sql.DB) error {
	goose.SetBaseFS(FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	if err := goose.Up(db, Dir); err != nil {
		return fmt.Errorf("failed to run up migrations: %w", err)
	}
	return nil
}
