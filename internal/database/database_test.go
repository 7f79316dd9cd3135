package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolConfig(t *testing.T) {
	cfg, err := poolConfig("postgres://auth:auth@db:5432/zhsystem?sslmode=disable", 8, 2)
	require.NoError(t, err)

	assert.Equal(t, int32(8), cfg.MaxConns)
	assert.Equal(t, int32(2), cfg.MinConns)
	assert.Equal(t, "zhsystem", cfg.ConnConfig.Database)
	assert.Equal(t, applicationName, cfg.ConnConfig.RuntimeParams["application_name"])
}

func TestPoolConfigKeepsApplicationName(t *testing.T) {
	cfg, err := poolConfig("postgres://auth@db/zhsystem?application_name=worker", 4, 1)
	require.NoError(t, err)
	assert.Equal(t, "worker", cfg.ConnConfig.RuntimeParams["application_name"])
}

func TestPoolConfigRejectsGarbage(t *testing.T) {
	_, err := poolConfig("://nope", 4, 1)
	assert.Error(t, err)
}
