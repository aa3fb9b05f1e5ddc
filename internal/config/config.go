// Package config provides functionality for managing configuration options
// for the application using command-line flags, a JSON config file and
// environment variables.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

// Storage drivers.
const (
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Duration is a time.Duration that reads "90s"-style strings from JSON and
// the environment.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Options holds the configuration values for the application.
type Options struct {
	// Port defines the server's listening address (ip:port).
	Port string `json:"port" env:"SERVER_ADDRESS"`

	// StorageDriver selects the persistence backend: file, sqlite or postgres.
	StorageDriver string `json:"storage_driver" env:"STORAGE_DRIVER"`
	// StorageDir holds the JSON documents or the sqlite database file.
	StorageDir string `json:"storage_dir" env:"STORAGE_DIR"`
	// DatabaseDSN holds the postgres connection string.
	DatabaseDSN string `json:"database_dsn" env:"DATABASE_DSN"`

	UploadRoot      string `json:"upload_root" env:"UPLOAD_ROOT"`
	UploadURLPrefix string `json:"upload_url_prefix" env:"UPLOAD_URL_PREFIX"`
	// PublicBaseURL prefixes signed download links, e.g. https://gallery.example.com.
	PublicBaseURL string `json:"public_base_url" env:"PUBLIC_BASE_URL"`
	HMACSecret    string `json:"hmac_secret" env:"HMAC_SECRET"`

	PinTTL      Duration `json:"pin_ttl" env:"PIN_TTL"`
	TokenTTL    Duration `json:"token_ttl" env:"TOKEN_TTL"`
	MaxAttempts int      `json:"max_attempts" env:"MAX_ATTEMPTS"`

	FavoriteRetentionDays int      `json:"favorite_retention_days" env:"FAVORITE_RETENTION_DAYS"`
	CleanupInterval       Duration `json:"cleanup_interval" env:"CLEANUP_INTERVAL"`

	LogLevel string `json:"log_level" env:"LOG_LEVEL"`
	TLSCert  string `json:"tls_cert" env:"TLS_CERT"`
	TLSKey   string `json:"tls_key" env:"TLS_KEY"`

	// Config is the path to the Config file.
	Config string `json:"-" env:"CONFIG"`
}

// newFlagSet registers every flag with its default on o.
func newFlagSet(o *Options) *flag.FlagSet {
	set := flag.NewFlagSet("server", flag.ContinueOnError)
	set.StringVar(&o.Port, "a", "localhost:8080", "run on ip:port server")
	set.StringVar(&o.StorageDriver, "s", DriverSQLite, "storage driver: file, sqlite or postgres")
	set.StringVar(&o.StorageDir, "storage", "data", "directory for JSON documents or the sqlite file")
	set.StringVar(&o.DatabaseDSN, "d", "", "postgres address")
	set.StringVar(&o.UploadRoot, "uploads", "uploads", "root directory of uploaded files")
	set.StringVar(&o.UploadURLPrefix, "upload-prefix", "/uploads", "URL prefix of uploaded files")
	set.StringVar(&o.PublicBaseURL, "base-url", "", "public base URL of signed download links")
	set.StringVar(&o.HMACSecret, "secret", "", "HMAC secret for signed download links")
	set.DurationVar((*time.Duration)(&o.PinTTL), "pin-ttl", 24*time.Hour, "download PIN lifetime")
	set.DurationVar((*time.Duration)(&o.TokenTTL), "token-ttl", time.Hour, "signed link lifetime")
	set.IntVar(&o.MaxAttempts, "max-attempts", 5, "verification attempts per PIN")
	set.IntVar(&o.FavoriteRetentionDays, "retention", 30, "days an idle favorite session is kept")
	set.DurationVar((*time.Duration)(&o.CleanupInterval), "cleanup-interval", time.Hour, "favorite session cleanup interval")
	set.StringVar(&o.LogLevel, "l", "info", "log level")
	set.StringVar(&o.TLSCert, "tls-cert", "", "TLS certificate file")
	set.StringVar(&o.TLSKey, "tls-key", "", "TLS key file")
	set.StringVar(&o.Config, "config", "config.json", "path to config file")
	set.StringVar(&o.Config, "c", "config.json", "path to config file (shorthand)")
	return set
}

// Parse builds the options from args (without the program name). Flag
// defaults are overlaid by the JSON config file, then by environment
// variables. A missing config file is ignored.
func Parse(args []string) (*Options, error) {
	o := &Options{}
	if err := newFlagSet(o).Parse(args); err != nil {
		return nil, err
	}

	if configPath := os.Getenv("CONFIG"); configPath != "" {
		o.Config = configPath
	}
	if o.Config != "" {
		data, err := os.ReadFile(o.Config)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			if err := json.Unmarshal(data, o); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	if err := env.Parse(o); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

// Validate reports the first invalid option.
func (o *Options) Validate() error {
	switch {
	case o.HMACSecret == "":
		return errors.New("hmac secret is required")
	case o.UploadRoot == "":
		return errors.New("upload root is required")
	case o.PinTTL <= 0 || o.TokenTTL <= 0:
		return errors.New("pin and token TTL must be positive")
	case o.MaxAttempts <= 0:
		return errors.New("max attempts must be positive")
	case o.CleanupInterval <= 0:
		return errors.New("cleanup interval must be positive")
	case (o.TLSCert == "") != (o.TLSKey == ""):
		return errors.New("tls cert and key must be set together")
	}
	switch o.StorageDriver {
	case DriverFile, DriverSQLite:
		if o.StorageDir == "" {
			return fmt.Errorf("storage dir is required for %s", o.StorageDriver)
		}
	case DriverPostgres:
		if o.DatabaseDSN == "" {
			return errors.New("database dsn is required for postgres")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", o.StorageDriver)
	}
	return nil
}
