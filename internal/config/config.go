// Package config loads CLI settings from the environment, optionally seeded
// from dotenv files. Settings use STACKWIRE_* variables except where the
// AWS, MinIO and OpenTelemetry tooling already define a name.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Backends a stack can be deployed to.
const (
	BackendMemory = "memory"
	BackendAWS    = "aws"
	// BackendMinio keeps buckets in an S3-compatible store and runs functions
	// and gateways in the memory account.
	BackendMinio = "minio"
)

// Config holds all configuration for the CLI.
type Config struct {
	Log     LogConfig
	State   StateConfig
	Backend BackendConfig
	AWS     AWSConfig
	Minio   MinioConfig
	Tracing TracingConfig
	Synth   SynthConfig
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `env:"STACKWIRE_LOG_LEVEL" envDefault:"info"`
	JSON  bool   `env:"STACKWIRE_LOG_JSON" envDefault:"false"`
}

// StateConfig holds deployment state storage configuration.
type StateConfig struct {
	Driver string `env:"STACKWIRE_STATE_DRIVER" envDefault:"sqlite3"`
	DSN    string `env:"STACKWIRE_STATE_DSN" envDefault:"stackwire.out/state.db"`
}

// BackendConfig selects the provisioning backend.
type BackendConfig struct {
	Name string `env:"STACKWIRE_BACKEND" envDefault:"memory"`
}

// AWSConfig holds AWS provisioning configuration.
type AWSConfig struct {
	Region      string        `env:"AWS_REGION"`
	Profile     string        `env:"AWS_PROFILE"`
	RoleArn     string        `env:"STACKWIRE_EXECUTION_ROLE_ARN"`
	WaitTimeout time.Duration `env:"STACKWIRE_AWS_WAIT_TIMEOUT" envDefault:"2m"`
}

// MinioConfig holds S3-compatible storage configuration.
type MinioConfig struct {
	Endpoint  string `env:"MINIO_ENDPOINT"`
	AccessKey string `env:"MINIO_ROOT_USER"`
	SecretKey string `env:"MINIO_ROOT_PASSWORD"`
	Secure    bool   `env:"MINIO_SECURE" envDefault:"false"`
	Region    string `env:"MINIO_REGION" envDefault:"us-east-1"`
}

// TracingConfig holds OpenTelemetry configuration.
type TracingConfig struct {
	Endpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"stackwire"`
}

// SynthConfig holds synthesis configuration.
type SynthConfig struct {
	Outdir string `env:"STACKWIRE_OUTDIR" envDefault:"stackwire.out"`
}

// Load reads dotenv files, then parses configuration from the environment.
// Missing dotenv files are ignored; with no files given, .env is tried.
func Load(dotenv ...string) (*Config, error) {
	if len(dotenv) == 0 {
		dotenv = []string{".env"}
	}
	for _, f := range dotenv {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", f, err)
		}
	}

	cfg := &Config{}
	sections := []struct {
		name string
		dst  any
	}{
		{"log", &cfg.Log},
		{"state", &cfg.State},
		{"backend", &cfg.Backend},
		{"aws", &cfg.AWS},
		{"minio", &cfg.Minio},
		{"tracing", &cfg.Tracing},
		{"synth", &cfg.Synth},
	}
	for _, s := range sections {
		if err := env.Parse(s.dst); err != nil {
			return nil, fmt.Errorf("parsing %s config: %w", s.name, err)
		}
	}
	return cfg, nil
}

// Validate checks backend-specific requirements.
func (c *Config) Validate() error {
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("STACKWIRE_LOG_LEVEL: %w", err)
	}

	switch c.State.Driver {
	case "sqlite3", "postgres":
		if c.State.DSN == "" {
			return fmt.Errorf("STACKWIRE_STATE_DSN is required for driver %s", c.State.Driver)
		}
	case "memory":
	default:
		return fmt.Errorf("STACKWIRE_STATE_DRIVER must be sqlite3, postgres or memory, got %q", c.State.Driver)
	}

	switch c.Backend.Name {
	case BackendMemory:
	case BackendAWS:
		if c.AWS.RoleArn == "" {
			return fmt.Errorf("STACKWIRE_EXECUTION_ROLE_ARN is required for the aws backend")
		}
	case BackendMinio:
		if c.Minio.Endpoint == "" {
			return fmt.Errorf("MINIO_ENDPOINT is required for the minio backend")
		}
		if c.Minio.AccessKey == "" || c.Minio.SecretKey == "" {
			return fmt.Errorf("MINIO_ROOT_USER and MINIO_ROOT_PASSWORD are required for the minio backend")
		}
	default:
		return fmt.Errorf("STACKWIRE_BACKEND must be memory, aws or minio, got %q", c.Backend.Name)
	}
	return nil
}

// LogLevel returns the parsed log level, info when unparseable.
func (c *LogConfig) LogLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.Level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
