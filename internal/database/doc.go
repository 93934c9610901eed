// Package database provides the PostgreSQL connection pool for the
// optional tick recorder.
package database
