// Gaia World Sync - Real-Time World State Synchronization Engine
// Copyright 2026 Aeonia AI
// SPDX-License-Identifier: Apache-2.0
// https://github.com/Aeonia-ai/gaia-sub003

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "0.0.0.0:8471", cfg.Server.Addr())
	assert.Equal(t, "shared", cfg.World.Model)
	assert.Equal(t, "adjacency", cfg.World.ScopeRule)
	assert.Equal(t, "inprocess", cfg.Bus.Driver)
	assert.False(t, cfg.Narrative.Enabled)
	assert.True(t, cfg.Persistence.SyncWrites)
}

func TestValidate_CrossFieldRules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"radius rule without radius", func(c *Config) {
			c.World.ScopeRule = "radius"
			c.World.ScopeRadius = 0
		}},
		{"narrative enabled without endpoint", func(c *Config) {
			c.Narrative.Enabled = true
			c.Narrative.Endpoint = ""
		}},
		{"eviction without idle timeout", func(c *Config) {
			c.World.EvictionInterval = time.Minute
			c.World.IdleTimeout = 0
		}},
		{"unknown world model", func(c *Config) {
			c.World.Model = "federated"
		}},
		{"unknown bus driver", func(c *Config) {
			c.Bus.Driver = "kafka"
		}},
		{"port out of range", func(c *Config) {
			c.Server.Port = 0
		}},
		{"missing template dir", func(c *Config) {
			c.World.TemplateDir = ""
		}},
		{"log level typo", func(c *Config) {
			c.Logging.Level = "verbose"
		}},
		{"malformed narrative endpoint", func(c *Config) {
			c.Narrative.Enabled = true
			c.Narrative.Endpoint = "not a url"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	t.Run("radius rule with radius is fine", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.World.ScopeRule = "radius"
		cfg.World.ScopeRadius = 50
		assert.NoError(t, cfg.Validate())
	})
}

func TestEnvTransform(t *testing.T) {
	assert.Equal(t, "server.port", envTransformFunc("HTTP_PORT"))
	assert.Equal(t, "world.model", envTransformFunc("WORLD_MODEL"))
	assert.Equal(t, "narrative.endpoint", envTransformFunc("narrative_endpoint"))
	assert.Equal(t, "bus.nats_url", envTransformFunc("NATS_URL"))
	assert.Equal(t, "logging.level", envTransformFunc("LOG_LEVEL"))

	// Unmapped environment variables never leak into the config.
	assert.Equal(t, "", envTransformFunc("PATH"))
	assert.Equal(t, "", envTransformFunc("HOME"))
	assert.Equal(t, "", envTransformFunc("WORLD_DOMINATION"))
}

func TestLoad_LayeringAndPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9100
world:
  model: isolated
  template_dir: `+dir+`
`), 0o600))

	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("HTTP_PORT", "9200")
	t.Setenv("WORLD_OPERATORS", "op-1, op-2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9200, cfg.Server.Port, "environment beats the file")
	assert.Equal(t, "isolated", cfg.World.Model, "file beats defaults")
	assert.Equal(t, dir, cfg.World.TemplateDir)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout, "untouched fields keep defaults")
	assert.Equal(t, []string{"op-1", "op-2"}, cfg.World.Operators, "comma lists split into slices")
}

func TestLoad_RejectsInvalidEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("world:\n  template_dir: "+dir+"\n"), 0o600))

	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("WORLD_MODEL", "federated")

	_, err := Load()
	require.Error(t, err)
}
