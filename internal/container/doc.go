// Package container starts the backing stores used by the journal
// integration tests, through testcontainers.
package container
