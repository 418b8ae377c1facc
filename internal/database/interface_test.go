package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlaceholder(t *testing.T) {
	assert.Equal(t, "$1", Placeholder(DriverPostgres, 1))
	assert.Equal(t, "$3", Placeholder(DriverPostgres, 3))
	assert.Equal(t, "?", Placeholder(DriverMySQL, 2))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig(DriverMySQL, "u:p@tcp(localhost:3306)/imgbed")
	assert.Equal(t, DriverMySQL, cfg.Driver)
	assert.Positive(t, cfg.MaxConns)
	assert.Positive(t, cfg.ConnectTimeout)
}
