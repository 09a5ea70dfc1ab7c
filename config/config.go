package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// EnvPrefix is prepended to every environment variable read by Load,
// e.g. RECIPES_HTTP_ADDR or RECIPES_GATEWAY_BACKEND.
const EnvPrefix = "RECIPES"

const (
	BackendSQLite    = "sqlite"
	BackendPostgres  = "postgres"
	BackendFirestore = "firestore"
)

type Config struct {
	Env     string        `envconfig:"ENV" toml:"env"`
	HTTP    HTTPConfig    `toml:"http"`
	Log     LogConfig     `toml:"log"`
	Gateway GatewayConfig `toml:"gateway"`
	Auth    AuthConfig    `toml:"auth"`
	Assets  AssetsConfig  `toml:"assets"`
	Ingest  IngestConfig  `toml:"ingest"`
}

type HTTPConfig struct {
	Addr            string        `envconfig:"ADDR" toml:"addr"`
	ReadTimeout     Duration `envconfig:"READ_TIMEOUT" toml:"read_timeout"`
	WriteTimeout    Duration `envconfig:"WRITE_TIMEOUT" toml:"write_timeout"`
	ShutdownTimeout Duration `envconfig:"SHUTDOWN_TIMEOUT" toml:"shutdown_timeout"`
	AllowedOrigins  []string      `envconfig:"ALLOWED_ORIGINS" toml:"allowed_origins"`
}

type LogConfig struct {
	Level   Level `envconfig:"LEVEL" toml:"level"`
	Console bool  `envconfig:"CONSOLE" toml:"console"`
}

// GatewayConfig selects the external data service. PublicDSN carries the
// read-only credentials used by page loaders, ServiceDSN the privileged ones
// used by ingestion. For sqlite both default to SQLitePath.
type GatewayConfig struct {
	Backend          string `envconfig:"BACKEND" toml:"backend"`
	PublicDSN        string `envconfig:"PUBLIC_DSN" toml:"public_dsn"`
	ServiceDSN       string `envconfig:"SERVICE_DSN" toml:"service_dsn"`
	SQLitePath       string `envconfig:"SQLITE_PATH" toml:"sqlite_path"`
	FirestoreProject string `envconfig:"FIRESTORE_PROJECT" toml:"firestore_project"`
}

type AuthConfig struct {
	JWTSecret  string `envconfig:"JWT_SECRET" toml:"jwt_secret"`
	CookieName string `envconfig:"COOKIE_NAME" toml:"cookie_name"`
}

type AssetsConfig struct {
	Version     string   `envconfig:"VERSION" toml:"version"`
	Dir         string   `envconfig:"DIR" toml:"dir"`
	UpstreamURL string   `envconfig:"UPSTREAM_URL" toml:"upstream_url"`
	Manifest    []string `envconfig:"MANIFEST" toml:"manifest"`
}

type IngestConfig struct {
	// RemoteSQL enables forwarding ingested text to the execute_sql procedure.
	RemoteSQL    bool  `envconfig:"REMOTE_SQL" toml:"remote_sql"`
	MaxBodyBytes int64 `envconfig:"MAX_BODY_BYTES" toml:"max_body_bytes"`
}

// Default returns the settings used when neither a file nor the environment
// says otherwise.
func Default() Config {
	return Config{
		Env: "development",
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     Duration(10 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
			AllowedOrigins:  []string{"*"},
		},
		Log: LogConfig{
			Level:   Level(zerolog.InfoLevel),
			Console: true,
		},
		Gateway: GatewayConfig{
			Backend:    BackendSQLite,
			SQLitePath: "recipes.db",
		},
		Auth: AuthConfig{
			CookieName: "sb-access-token",
		},
		Assets: AssetsConfig{
			Dir: "static",
		},
		Ingest: IngestConfig{
			MaxBodyBytes: 1 << 20,
		},
	}
}

// Load builds the configuration in three layers: defaults, then the TOML file
// at path (skipped when path is empty), then RECIPES_* environment variables.
// A .env file in the working directory is loaded into the environment first
// if present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "failed to load .env")
	}

	cfg := Default()
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open config")
		}
		defer file.Close()
		if err := toml.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, errors.Wrapf(err, "failed to decode %s", path)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to read environment")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that would otherwise only fail on first use.
func (c *Config) Validate() error {
	switch c.Gateway.Backend {
	case BackendSQLite:
		if c.Gateway.SQLitePath == "" {
			return errors.New("gateway: sqlite_path is required for the sqlite backend")
		}
	case BackendPostgres:
		if c.Gateway.PublicDSN == "" {
			return errors.New("gateway: public_dsn is required for the postgres backend")
		}
	case BackendFirestore:
		if c.Gateway.FirestoreProject == "" {
			return errors.New("gateway: firestore_project is required for the firestore backend")
		}
	default:
		return errors.Errorf("gateway: unknown backend %q", c.Gateway.Backend)
	}
	if c.Ingest.MaxBodyBytes <= 0 {
		return errors.New("ingest: max_body_bytes must be positive")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Level wraps zerolog.Level so it can be decoded from env vars and TOML.
type Level zerolog.Level

// Decode implements envconfig.Decoder.
func (l *Level) Decode(value string) error {
	level, err := zerolog.ParseLevel(strings.ToLower(value))
	if err != nil {
		return err
	}
	*l = Level(level)
	return nil
}

func (l *Level) UnmarshalText(text []byte) error {
	return l.Decode(string(text))
}

func (l Level) String() string {
	return zerolog.Level(l).String()
}

// Duration is a time.Duration written as "10s" or "1m30s" in env vars and
// TOML.
type Duration time.Duration

// Decode implements envconfig.Decoder.
func (d *Duration) Decode(value string) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	return d.Decode(string(text))
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d Duration) String() string {
	return time.Duration(d).String()
}
