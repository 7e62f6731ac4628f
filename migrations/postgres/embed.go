// Package migrations embeds SQL migration files.
package migrations

import "embed"

// UsersFS contains the schema migrations for the user store.
//
//go:embed users/*.sql
var UsersFS embed.FS

// UsersDir is the directory within UsersFS where migrations live.
const UsersDir = "users"
