// Package migrations embeds the Postgres schema migrations applied by
// cmd/reconctl-migrate via github.com/pressly/goose/v3. Kept separate from
// cmd/reconctl-migrate so go:embed's directory-tree restriction doesn't
// force the SQL files to live under cmd/.
package migrations

import "embed"

//go:embed all:migrations
var FS embed.FS

// Dir is the embedded subdirectory goose.SetBaseFS/goose.Up expect.
const Dir = "migrations"
