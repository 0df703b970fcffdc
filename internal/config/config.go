// Package config handles loading and parsing of photo gateway configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultBucket is the bucket used when neither the config file nor
// BUCKET_NAME names one.
const DefaultBucket = "brit-qr-uploads-482609"

// Config is the top-level configuration for the photo gateway.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
	CORS          CORSConfig          `yaml:"cors"`
	Upload        UploadConfig        `yaml:"upload"`
	Listing       ListingConfig       `yaml:"listing"`
	Storage       StorageConfig       `yaml:"storage"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// ShutdownTimeout is the graceful shutdown window in seconds.
	ShutdownTimeout int `yaml:"shutdown_timeout"`
}

// LoggingConfig holds slog settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ObservabilityConfig toggles the Prometheus endpoint.
type ObservabilityConfig struct {
	Metrics bool `yaml:"metrics"`
}

// CORSConfig holds cross-origin settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// UploadConfig holds Ingest settings.
type UploadConfig struct {
	// MaxBytes caps the request body size. Zero disables the cap.
	MaxBytes int64 `yaml:"max_bytes"`
	// Staging is "memory" or "disk".
	Staging string `yaml:"staging"`
	// StagingDir is where disk staging writes temporary files. Empty means
	// the OS temp directory.
	StagingDir string `yaml:"staging_dir"`
	// StrictVisibility rejects visibility values other than "public" and
	// "private" instead of treating them as private.
	StrictVisibility bool `yaml:"strict_visibility"`
}

// ListingConfig holds Enumerate settings.
type ListingConfig struct {
	// Concurrency bounds the number of in-flight per-object metadata fetches.
	Concurrency int `yaml:"concurrency"`
}

// StorageConfig holds object storage backend settings.
type StorageConfig struct {
	// Backend is the storage backend type: "gcp", "aws", "azure", "sqlite",
	// "local" or "memory".
	Backend string `yaml:"backend"`
	// Bucket is the bucket (or Azure container) holding uploaded photos.
	Bucket string `yaml:"bucket"`
	// Prefix is an optional key prefix for every object the gateway writes.
	Prefix string `yaml:"prefix"`
	// PublicHost overrides the backend's default host for unsigned URLs.
	PublicHost string `yaml:"public_host"`
	// CredentialsFile is a GCP service-account JSON file. Empty means
	// Application Default Credentials.
	CredentialsFile string `yaml:"credentials_file"`
	// GCPProject is the GCP project ID, used for logging only.
	GCPProject string `yaml:"gcp_project"`
	// AWSRegion is the region of the S3 bucket.
	AWSRegion string `yaml:"aws_region"`
	// AWSEndpoint is a custom S3 endpoint (MinIO, R2, ...).
	AWSEndpoint string `yaml:"aws_endpoint"`
	// AWSUsePathStyle forces path-style S3 addressing.
	AWSUsePathStyle bool `yaml:"aws_use_path_style"`
	// AWSAccessKey and AWSSecretKey are optional static credentials.
	AWSAccessKey string `yaml:"aws_access_key"`
	AWSSecretKey string `yaml:"aws_secret_key"`
	// AzureAccount is the storage account name. Used to construct the
	// account URL https://{account}.blob.core.windows.net.
	AzureAccount string `yaml:"azure_account"`
	// AzureAccountURL is the full account URL; overrides AzureAccount.
	AzureAccountURL string `yaml:"azure_account_url"`
	// AzureConnectionString enables shared-key auth (required for SAS URLs).
	AzureConnectionString string `yaml:"azure_connection_string"`
	// SQLitePath is the database file for the sqlite backend.
	SQLitePath string `yaml:"sqlite_path"`
	// LocalRoot is the root directory for the local filesystem backend.
	LocalRoot string `yaml:"local_root"`
}

// Load builds the configuration in layers: defaults, then the YAML file at
// path (a missing file is not an error), then a .env file in the working
// directory if present, then environment variables.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			slog.Debug("Config file not found, using defaults", "path", path)
		case err != nil:
			return nil, fmt.Errorf("reading config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file: %w", err)
			}
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env file: %w", err)
	}

	if err := applyEnv(cfg, os.Getenv); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Addr returns the host:port the server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Observability: ObservabilityConfig{
			Metrics: true,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
		Upload: UploadConfig{
			MaxBytes: 32 << 20,
			Staging:  "memory",
		},
		Listing: ListingConfig{
			Concurrency: 8,
		},
		Storage: StorageConfig{
			Backend:    "gcp",
			Bucket:     DefaultBucket,
			AWSRegion:  "us-east-1",
			SQLitePath: "./data/photos.db",
			LocalRoot:  "./data/objects",
		},
	}
}

// applyEnv overlays the environment variables the deployment platform sets.
func applyEnv(cfg *Config, getenv func(string) string) error {
	if v := getenv("BUCKET_NAME"); v != "" {
		cfg.Storage.Bucket = v
	}
	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("invalid PORT %q", v)
		}
		cfg.Server.Port = port
	}
	if v := getenv("GOOGLE_APPLICATION_CREDENTIALS"); v != "" {
		cfg.Storage.CredentialsFile = v
	}
	if v := getenv("STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	return nil
}

// applyDefaults fills in any fields that are still at their zero value
// after YAML unmarshaling.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30
	}
	if cfg.Upload.Staging == "" {
		cfg.Upload.Staging = "memory"
	}
	if cfg.Listing.Concurrency <= 0 {
		cfg.Listing.Concurrency = 8
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "gcp"
	}
	if cfg.Storage.Bucket == "" {
		cfg.Storage.Bucket = DefaultBucket
	}
	if cfg.Storage.AWSRegion == "" {
		cfg.Storage.AWSRegion = "us-east-1"
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "./data/photos.db"
	}
	if cfg.Storage.LocalRoot == "" {
		cfg.Storage.LocalRoot = "./data/objects"
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		cfg.CORS.AllowedOrigins = []string{"*"}
	}
}

// validate rejects settings that would otherwise be silently ignored.
func validate(cfg *Config) error {
	switch cfg.Upload.Staging {
	case "memory", "disk":
	default:
		return fmt.Errorf("invalid upload.staging %q: must be \"memory\" or \"disk\"", cfg.Upload.Staging)
	}
	return nil
}
