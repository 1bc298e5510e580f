package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "sqlite3", cfg.State.Driver)
	assert.Equal(t, BackendMemory, cfg.Backend.Name)
	assert.Equal(t, 2*time.Minute, cfg.AWS.WaitTimeout)
	assert.Equal(t, "stackwire", cfg.Tracing.ServiceName)
	assert.Equal(t, "stackwire.out", cfg.Synth.Outdir)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("STACKWIRE_BACKEND", "aws")
	t.Setenv("STACKWIRE_EXECUTION_ROLE_ARN", "arn:aws:iam::123456789012:role/generator")
	t.Setenv("STACKWIRE_AWS_WAIT_TIMEOUT", "30s")
	t.Setenv("STACKWIRE_LOG_LEVEL", "debug")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, BackendAWS, cfg.Backend.Name)
	assert.Equal(t, 30*time.Second, cfg.AWS.WaitTimeout)
	assert.Equal(t, zerolog.DebugLevel, cfg.Log.LogLevel())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_DotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("STACKWIRE_OUTDIR=custom.out\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("STACKWIRE_OUTDIR") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "custom.out", cfg.Synth.Outdir)
}

func TestLoad_BadDuration(t *testing.T) {
	t.Setenv("STACKWIRE_AWS_WAIT_TIMEOUT", "soon")
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Log:     LogConfig{Level: "info"},
			State:   StateConfig{Driver: "sqlite3", DSN: "state.db"},
			Backend: BackendConfig{Name: BackendMemory},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "STACKWIRE_LOG_LEVEL"},
		{"bad driver", func(c *Config) { c.State.Driver = "oracle" }, "STACKWIRE_STATE_DRIVER"},
		{"missing dsn", func(c *Config) { c.State.DSN = "" }, "STACKWIRE_STATE_DSN"},
		{"memory state", func(c *Config) { c.State = StateConfig{Driver: "memory"} }, ""},
		{"bad backend", func(c *Config) { c.Backend.Name = "gcp" }, "STACKWIRE_BACKEND"},
		{"aws without role", func(c *Config) { c.Backend.Name = BackendAWS }, "STACKWIRE_EXECUTION_ROLE_ARN"},
		{"minio without endpoint", func(c *Config) { c.Backend.Name = BackendMinio }, "MINIO_ENDPOINT"},
		{"minio without keys", func(c *Config) {
			c.Backend.Name = BackendMinio
			c.Minio.Endpoint = "localhost:9000"
		}, "MINIO_ROOT_USER"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
