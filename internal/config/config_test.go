package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "taxonomy-backend/internal/errors"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func testLoader(dir string, env Environment, vars map[string]string) *Loader {
	l := NewLoader(dir, env)
	l.getenv = func(key string) string { return vars[key] }
	return l
}

func TestDefaultsAreValid(t *testing.T) {
	for _, env := range []Environment{Development, Staging, Production} {
		t.Run(string(env), func(t *testing.T) {
			assert.NoError(t, Defaults(env).Validate())
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown environment", func(c *Config) { c.Environment = "qa" }},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
		{"unknown backend", func(c *Config) { c.Store.Backend = "postgres" }},
		{"sqlite without path", func(c *Config) { c.Store.Backend = BackendSQLite; c.Store.SQLitePath = "" }},
		{"dynamodb without table", func(c *Config) { c.Store.Backend = BackendDynamoDB; c.Store.TableName = "" }},
		{"events without bus", func(c *Config) { c.Events.Enabled = true; c.Events.BusName = "" }},
		{"failure ratio above one", func(c *Config) { c.Breaker.FailureRatio = 1.5 }},
		{"zero page size", func(c *Config) { c.Store.PageSize = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults(Development)
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))
		})
	}
}

func TestLoader_Layers(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
server:
  port: 9000
store:
  backend: sqlite
  sqlite_path: base.db
cache:
  response_cache_ttl: 30s
`)
	writeFile(t, dir, "staging.yaml", `
store:
  sqlite_path: staging.db
`)
	writeFile(t, dir, "local.yaml", `
server:
  port: 1
`)

	cfg, err := testLoader(dir, Staging, map[string]string{"TAXONOMY_PAGE_SIZE": "50"}).Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port, "local.yaml only applies in development")
	assert.Equal(t, BackendSQLite, cfg.Store.Backend)
	assert.Equal(t, "staging.db", cfg.Store.SQLitePath)
	assert.Equal(t, 30*time.Second, cfg.Cache.ResponseCacheTTL)
	assert.Equal(t, 50, cfg.Store.PageSize)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout, "defaults survive partial files")
	assert.Equal(t, []string{"defaults", filepath.Join(dir, "base.yaml"), filepath.Join(dir, "staging.yaml"), "environment"}, cfg.LoadedFrom)
}

func TestLoader_EnvironmentOverrides(t *testing.T) {
	cfg, err := testLoader(t.TempDir(), Development, map[string]string{
		"TAXONOMY_STORE_BACKEND":  "dynamodb",
		"TAXONOMY_TABLE_NAME":     "taxonomy-test",
		"AWS_REGION":              "eu-west-1",
		"TAXONOMY_EVENTS_ENABLED": "true",
		"TAXONOMY_EVENT_BUS_NAME": "bus",
	}).Load()
	require.NoError(t, err)

	assert.Equal(t, BackendDynamoDB, cfg.Store.Backend)
	assert.Equal(t, "taxonomy-test", cfg.Store.TableName)
	assert.Equal(t, "eu-west-1", cfg.Store.Region)
	assert.True(t, cfg.Events.Enabled)
	assert.Equal(t, "bus", cfg.Events.BusName)
}

func TestLoader_Errors(t *testing.T) {
	_, err := testLoader(t.TempDir(), Development, map[string]string{"TAXONOMY_SERVER_PORT": "eighty"}).Load()
	assert.ErrorContains(t, err, "TAXONOMY_SERVER_PORT")

	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "server: [")
	_, err = testLoader(dir, Development, nil).Load()
	assert.ErrorContains(t, err, "base")

	_, err = testLoader(t.TempDir(), Development, map[string]string{"TAXONOMY_STORE_BACKEND": "sqlite", "TAXONOMY_SQLITE_PATH": ""}).Load()
	assert.NoError(t, err, "empty variables are ignored")
}

func TestWatcher_ReloadsInDevelopment(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "server:\n  port: 9000\n")
	loader := testLoader(dir, Development, nil)
	initial, err := loader.Load()
	require.NoError(t, err)

	w, err := NewWatcher(loader, initial, nil)
	require.NoError(t, err)
	defer w.Stop()

	changed := make(chan *Config, 1)
	w.OnChange(func(c *Config) { changed <- c })

	writeFile(t, dir, "base.yaml", "server:\n  port: 9100\n")

	select {
	case c := <-changed:
		assert.Equal(t, 9100, c.Server.Port)
		assert.Equal(t, 9100, w.Config().Server.Port)
	case <-time.After(5 * time.Second):
		t.Fatal("configuration was not reloaded")
	}
}

func TestWatcher_KeepsConfigOnInvalidReload(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "server:\n  port: 9000\n")
	loader := testLoader(dir, Development, nil)
	initial, err := loader.Load()
	require.NoError(t, err)

	w, err := NewWatcher(loader, initial, nil)
	require.NoError(t, err)
	defer w.Stop()

	writeFile(t, dir, "base.yaml", "server:\n  port: 0\n")
	w.reload()
	assert.Equal(t, 9000, w.Config().Server.Port)
}

func TestWatcher_DisabledOutsideDevelopment(t *testing.T) {
	cfg := Defaults(Production)
	w, err := NewWatcher(NewLoader(t.TempDir(), Production), cfg, nil)
	require.NoError(t, err)
	assert.Same(t, cfg, w.Config())
	w.Stop()
	w.Stop()
}
