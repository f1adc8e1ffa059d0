package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	NATS       NATSConfig       `yaml:"nats"`
	MinIO      MinIOConfig      `yaml:"minio"`
	Matching   MatchingConfig   `yaml:"matching"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Scan       ScanConfig       `yaml:"scan"`
	Tagging    TaggingConfig    `yaml:"tagging"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type MatchingConfig struct {
	Tolerance float64 `yaml:"tolerance"`
	Jitter    int     `yaml:"jitter"`
	Model     string  `yaml:"model"`
}

type ExtractionConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	ResizeTo     int           `yaml:"resize_to"`
	ModelsDir    string        `yaml:"models_dir"`
	DetThreshold float64       `yaml:"det_threshold"`
	NMSThreshold float64       `yaml:"nms_threshold"`
}

type ScanConfig struct {
	Root         string   `yaml:"root"`
	Known        string   `yaml:"known"`
	Extensions   []string `yaml:"extensions"`
	BucketPrefix string   `yaml:"bucket_prefix"`
}

const (
	TaggingOff     = "off"
	TaggingSidecar = "sidecar"
	TaggingQueue   = "queue"
)

type TaggingConfig struct {
	Mode string `yaml:"mode"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Load reads config from an optional YAML file, then a .env file in the
// working directory, and applies environment variable overrides on top.
// An empty path skips the YAML step.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings that cannot be run.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Matching.Tolerance <= 0 {
		return fmt.Errorf("matching tolerance must be positive, got %v", c.Matching.Tolerance)
	}
	switch c.Matching.Model {
	case "small", "large":
	default:
		return fmt.Errorf("unknown matching model %q", c.Matching.Model)
	}
	switch c.Tagging.Mode {
	case TaggingOff, TaggingSidecar, TaggingQueue:
	default:
		return fmt.Errorf("unknown tagging mode %q", c.Tagging.Mode)
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverSQLite
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "lits.db"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://localhost:4222"
	}
	if cfg.Matching.Tolerance == 0 {
		cfg.Matching.Tolerance = 0.6
	}
	if cfg.Matching.Jitter == 0 {
		cfg.Matching.Jitter = 1
	}
	if cfg.Matching.Model == "" {
		cfg.Matching.Model = "large"
	}
	if cfg.Extraction.Timeout == 0 {
		cfg.Extraction.Timeout = time.Minute
	}
	if cfg.Extraction.ResizeTo == 0 {
		cfg.Extraction.ResizeTo = 1250
	}
	if cfg.Extraction.ModelsDir == "" {
		cfg.Extraction.ModelsDir = "models"
	}
	if cfg.Extraction.DetThreshold == 0 {
		cfg.Extraction.DetThreshold = 0.5
	}
	if cfg.Extraction.NMSThreshold == 0 {
		cfg.Extraction.NMSThreshold = 0.4
	}
	if len(cfg.Scan.Extensions) == 0 {
		cfg.Scan.Extensions = []string{".jpg"}
	}
	if cfg.Tagging.Mode == "" {
		cfg.Tagging.Mode = TaggingSidecar
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LITS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("LITS_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("LITS_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("LITS_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("LITS_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("LITS_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("LITS_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("LITS_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("LITS_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("LITS_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("LITS_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("LITS_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("LITS_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("LITS_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("LITS_TOLERANCE"); v != "" {
		if tol, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Matching.Tolerance = tol
		}
	}
	if v := os.Getenv("LITS_EXTRACTION_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Extraction.Timeout = d
		}
	}
	if v := os.Getenv("LITS_MODELS_DIR"); v != "" {
		cfg.Extraction.ModelsDir = v
	}
	if v := os.Getenv("LITS_SCAN_EXTENSIONS"); v != "" {
		cfg.Scan.Extensions = strings.Split(v, ",")
	}
	if v := os.Getenv("LITS_TAGGING_MODE"); v != "" {
		cfg.Tagging.Mode = v
	}
	if v := os.Getenv("LITS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
