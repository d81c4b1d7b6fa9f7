package main

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcare/mcare/internal/config"
	"github.com/mcare/mcare/internal/platform/auth"
)

func TestJWTSecret(t *testing.T) {
	got, err := jwtSecret(&config.Config{Env: "production", JWTSecret: "configured"}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "configured", string(got))

	_, err = jwtSecret(&config.Config{Env: "production"}, zerolog.Nop())
	assert.Error(t, err)

	a, err := jwtSecret(&config.Config{Env: "development"}, zerolog.Nop())
	require.NoError(t, err)
	b, err := jwtSecret(&config.Config{Env: "development"}, zerolog.Nop())
	require.NoError(t, err)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}

func TestRevocationStore_MemoryWithoutRedis(t *testing.T) {
	store, pinger, closeFn, err := revocationStore(&config.Config{}, zerolog.Nop())
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &auth.MemoryRevocationStore{}, store)
	assert.Nil(t, pinger)
}

func TestRevocationStore_BadRedisURL(t *testing.T) {
	_, _, _, err := revocationStore(&config.Config{RedisURL: "not-a-url"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestCommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range []interface{ Name() string }{serveCmd(), migrateCmd(), relayCmd(), userCmd()} {
		names[c.Name()] = true
	}
	assert.Equal(t, map[string]bool{"serve": true, "migrate": true, "relay": true, "user": true}, names)

	sub, _, err := userCmd().Find([]string{"create-admin"})
	require.NoError(t, err)
	assert.Equal(t, "create-admin", sub.Name())
}
