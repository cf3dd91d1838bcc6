// Package config reads harmonycore settings from HARMONYCORE_* environment
// variables. CLI flags override the loaded values.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Prefix is the environment variable namespace.
const Prefix = "HARMONYCORE_"

// Storage backends.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Metrics exporters.
const (
	MetricsPrometheus = "prometheus"
	MetricsExpvar     = "expvar"
	MetricsNone       = "none"
)

// Storage selects the warehouse backend.
type Storage struct {
	Driver      string
	SQLitePath  string
	PostgresDSN string
}

// Blob configures run archiving.
type Blob struct {
	Driver      string
	FSRoot      string
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3Prefix    string
	S3PathStyle bool
}

// Config is the full runtime configuration.
type Config struct {
	Storage       Storage
	Blob          Blob
	Workers       int
	RetryAttempts int
	RetryBackoff  time.Duration
	LookupCache   int
	LogLevel      string
	LogFormat     string
	Actor         string
	Metrics       string
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Storage:       Storage{Driver: StorageSQLite, SQLitePath: "./harmonycore.db"},
		Blob:          Blob{Driver: "fs", FSRoot: "./blobdata"},
		Workers:       8,
		RetryAttempts: 2,
		RetryBackoff:  200 * time.Millisecond,
		LookupCache:   4096,
		LogLevel:      "info",
		LogFormat:     "text",
		Actor:         "harmonize",
		Metrics:       MetricsNone,
	}
}

// Load reads the process environment on top of Default.
func Load() (Config, error) { return LoadFrom(os.LookupEnv) }

// LoadFrom reads settings through lookup, which has the signature of os.LookupEnv.
func LoadFrom(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	r := reader{lookup: lookup}
	r.str("STORAGE_DRIVER", &cfg.Storage.Driver)
	r.str("SQLITE_PATH", &cfg.Storage.SQLitePath)
	r.str("POSTGRES_DSN", &cfg.Storage.PostgresDSN)
	r.str("BLOB_DRIVER", &cfg.Blob.Driver)
	r.str("BLOB_FS_ROOT", &cfg.Blob.FSRoot)
	r.str("BLOB_S3_BUCKET", &cfg.Blob.S3Bucket)
	r.str("BLOB_S3_REGION", &cfg.Blob.S3Region)
	r.str("BLOB_S3_ENDPOINT", &cfg.Blob.S3Endpoint)
	r.str("BLOB_S3_PREFIX", &cfg.Blob.S3Prefix)
	r.boolean("BLOB_S3_PATH_STYLE", &cfg.Blob.S3PathStyle)
	r.integer("WORKERS", &cfg.Workers)
	r.integer("RETRY_ATTEMPTS", &cfg.RetryAttempts)
	r.duration("RETRY_BACKOFF", &cfg.RetryBackoff)
	r.integer("LOOKUP_CACHE", &cfg.LookupCache)
	r.str("LOG_LEVEL", &cfg.LogLevel)
	r.str("LOG_FORMAT", &cfg.LogFormat)
	r.str("ACTOR", &cfg.Actor)
	r.str("METRICS", &cfg.Metrics)
	if err := errors.Join(r.errs...); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Validate rejects out-of-range or unknown settings.
func (c Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case StorageMemory, StorageSQLite, StoragePostgres:
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	switch c.Blob.Driver {
	case "fs", "memory":
	case "s3":
		if c.Blob.S3Bucket == "" {
			errs = append(errs, fmt.Errorf("%sBLOB_S3_BUCKET required for s3 driver", Prefix))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown blob driver %q", c.Blob.Driver))
	}
	switch c.Metrics {
	case MetricsPrometheus, MetricsExpvar, MetricsNone:
	default:
		errs = append(errs, fmt.Errorf("unknown metrics exporter %q", c.Metrics))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if c.RetryAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry attempts must be positive, got %d", c.RetryAttempts))
	}
	if c.RetryBackoff < 0 {
		errs = append(errs, fmt.Errorf("retry backoff must not be negative, got %s", c.RetryBackoff))
	}
	if c.LookupCache < 0 {
		errs = append(errs, fmt.Errorf("lookup cache must not be negative, got %d", c.LookupCache))
	}
	if strings.TrimSpace(c.Actor) == "" {
		errs = append(errs, errors.New("actor must not be empty"))
	}
	return errors.Join(errs...)
}

type reader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (r *reader) get(name string) (string, bool) {
	v, ok := r.lookup(Prefix + name)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (r *reader) str(name string, dst *string) {
	if v, ok := r.get(name); ok {
		*dst = v
	}
}

func (r *reader) integer(name string, dst *int) {
	v, ok := r.get(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s%s: %w", Prefix, name, err))
		return
	}
	*dst = n
}

func (r *reader) boolean(name string, dst *bool) {
	v, ok := r.get(name)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s%s: %w", Prefix, name, err))
		return
	}
	*dst = b
}

func (r *reader) duration(name string, dst *time.Duration) {
	v, ok := r.get(name)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s%s: %w", Prefix, name, err))
		return
	}
	*dst = d
}
