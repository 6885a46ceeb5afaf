//go:build integration

// Package testdb locates and connects to the PostgreSQL database used by
// integration tests. Tests built with the integration tag call DatabaseURL
// or Pool, which skip the test when no database is configured locally and
// fail it in CI, where a database is always expected.
package testdb
