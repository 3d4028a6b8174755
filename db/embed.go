// Package db embeds the database schema and the sample catalog.
package db

import _ "embed"

// Schema creates every table the service uses. Each statement is idempotent.
//
//go:embed migrations/001_schema.sql
var Schema string

// Seed is the sample catalog loaded by seed-db when no seed file is given.
//
//go:embed seed/seed.json
var Seed []byte
