// Package storage is the PostgreSQL persistence layer for jobs, tenant webhook
// configuration, API keys, credit usage and the request audit log.
package storage

import (
	"embed"
	"log/slog"

	"github.com/jmoiron/sqlx"
)

// Migrations holds the goose migrations for every table this package reads or writes.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations goose should read.
const MigrationsDir = "migrations"

// Storage handles all database operations
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}
