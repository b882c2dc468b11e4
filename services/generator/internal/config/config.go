package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultCacheDriver    = "fs"
	defaultCacheDir       = "cache"
	defaultTemplatesDir   = "templates"
	defaultTempDir        = "temp"
	defaultOutputDir      = "output"
	defaultNemoWorkingDir = "nemo"
	defaultNemoCommand    = "./nemo_batch"
	defaultNetworkRetries = 3
	defaultRetryWait      = 10 * time.Second
	defaultRequestTimeout = 60 * time.Second
)

// Config holds runtime configuration for the generator.
type Config struct {
	DatabaseURL string
	CSRURL      string

	CacheDriver      string
	CacheDir         string
	CacheS3Bucket    string
	CacheS3Region    string
	CacheS3Endpoint  string
	CacheS3Prefix    string
	CacheS3PathStyle bool

	TemplatesDir   string
	TempDir        string
	OutputDir      string
	NemoWorkingDir string
	NemoCommand    string

	NetworkRetries  int
	RetryWait       time.Duration
	RequestTimeout  time.Duration
	Importers       []string
	MetricsTextfile string
	DryRun          bool
}

// Load reads configuration from environment variables (optionally .env).
func Load() (Config, error) {
	_ = godotenv.Load(".env")

	cfg := Config{}

	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if cfg.DatabaseURL == "" {
		return cfg, errors.New("DATABASE_URL is required")
	}

	cfg.CSRURL = strings.TrimSpace(os.Getenv("CDI_CSR_URL"))
	if cfg.CSRURL == "" {
		return cfg, errors.New("CDI_CSR_URL is required")
	}

	cfg.CacheDriver = envOr("CDI_CACHE_DRIVER", defaultCacheDriver)
	cfg.CacheDir = envOr("CDI_CACHE_DIR", defaultCacheDir)
	cfg.CacheS3Bucket = strings.TrimSpace(os.Getenv("CDI_CACHE_S3_BUCKET"))
	cfg.CacheS3Region = strings.TrimSpace(os.Getenv("CDI_CACHE_S3_REGION"))
	cfg.CacheS3Endpoint = strings.TrimSpace(os.Getenv("CDI_CACHE_S3_ENDPOINT"))
	cfg.CacheS3Prefix = strings.TrimSpace(os.Getenv("CDI_CACHE_S3_PREFIX"))
	cfg.CacheS3PathStyle = envBool("CDI_CACHE_S3_PATH_STYLE")
	if strings.EqualFold(cfg.CacheDriver, "s3") && cfg.CacheS3Bucket == "" {
		return cfg, errors.New("CDI_CACHE_S3_BUCKET is required when CDI_CACHE_DRIVER=s3")
	}

	cfg.TemplatesDir = envOr("CDI_TEMPLATES_DIR", defaultTemplatesDir)
	cfg.TempDir = envOr("CDI_TEMP_DIR", defaultTempDir)
	cfg.OutputDir = envOr("CDI_OUTPUT_DIR", defaultOutputDir)
	cfg.NemoWorkingDir = envOr("CDI_NEMO_WORKING_DIR", defaultNemoWorkingDir)
	cfg.NemoCommand = envOr("CDI_NEMO_COMMAND", defaultNemoCommand)

	cfg.NetworkRetries = defaultNetworkRetries
	if v := strings.TrimSpace(os.Getenv("CDI_NETWORK_RETRIES")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid CDI_NETWORK_RETRIES: %w", err)
		}
		if n < 1 {
			return cfg, fmt.Errorf("invalid CDI_NETWORK_RETRIES: must be at least 1, got %d", n)
		}
		cfg.NetworkRetries = n
	}

	cfg.RetryWait = defaultRetryWait
	if v := strings.TrimSpace(os.Getenv("CDI_RETRY_WAIT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid CDI_RETRY_WAIT: %w", err)
		}
		if d < 0 {
			return cfg, fmt.Errorf("invalid CDI_RETRY_WAIT: negative duration %s", d)
		}
		cfg.RetryWait = d
	}

	cfg.RequestTimeout = defaultRequestTimeout
	if v := strings.TrimSpace(os.Getenv("CDI_REQUEST_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid CDI_REQUEST_TIMEOUT: %w", err)
		}
		cfg.RequestTimeout = d
	}

	for _, name := range strings.Split(os.Getenv("CDI_IMPORTERS"), ",") {
		if name = strings.TrimSpace(name); name != "" {
			cfg.Importers = append(cfg.Importers, name)
		}
	}

	cfg.MetricsTextfile = strings.TrimSpace(os.Getenv("CDI_METRICS_TEXTFILE"))
	cfg.DryRun = envBool("DRY_RUN")

	return cfg, nil
}

// ImporterEnabled reports whether name may be used. An empty CDI_IMPORTERS
// enables every registered importer.
func (c Config) ImporterEnabled(name string) bool {
	if len(c.Importers) == 0 {
		return true
	}
	for _, n := range c.Importers {
		if n == name {
			return true
		}
	}
	return false
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	v := strings.TrimSpace(os.Getenv(key))
	return v == "1" || strings.EqualFold(v, "true")
}

// CSRURL returns CDI_CSR_URL without validating the rest of the
// configuration.
func CSRURL() string {
	_ = godotenv.Load(".env")
	return strings.TrimSpace(os.Getenv("CDI_CSR_URL"))
}
