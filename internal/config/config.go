package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultJWTSecret = "supersecretkey"

type Config struct {
	Addr           string        `yaml:"addr"`
	JWTSecret      string        `yaml:"jwt_secret"`
	APITimeout     time.Duration `yaml:"timeout"`
	DatabasePath   string        `yaml:"database_path"`
	TokenDuration  time.Duration `yaml:"token_duration"`
	MigrateOnStart bool          `yaml:"migrate_on_start"`
	Upload         UploadConfig  `yaml:"upload"`
	Blob           BlobConfig    `yaml:"blob"`
	Jobs           JobsConfig    `yaml:"jobs"`
}

type UploadConfig struct {
	MaxBytes          int64    `yaml:"max_bytes"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

// BlobConfig selects where uploaded files live. Driver is "disk" or "s3".
type BlobConfig struct {
	Driver    string `yaml:"driver"`
	Dir       string `yaml:"dir"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Prefix    string `yaml:"prefix"`
}

type JobsConfig struct {
	Workers      int           `yaml:"workers"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		Addr:           getEnv("RECRUIT_ADDR", ":8080"),
		JWTSecret:      getEnv("RECRUIT_JWT_SECRET", defaultJWTSecret),
		APITimeout:     15 * time.Second,
		DatabasePath:   getEnv("RECRUIT_DATABASE_PATH", "recruit.db"),
		TokenDuration:  24 * time.Hour,
		MigrateOnStart: getEnvBool("RECRUIT_MIGRATE_ON_START", false),
		Upload: UploadConfig{
			MaxBytes:          5 << 20,
			AllowedExtensions: []string{"pdf", "jpg", "jpeg", "png"},
		},
		Blob: BlobConfig{
			Driver:    getEnv("RECRUIT_BLOB_DRIVER", "disk"),
			Dir:       getEnv("RECRUIT_BLOB_DIR", "uploads"),
			Bucket:    os.Getenv("RECRUIT_S3_BUCKET"),
			Region:    getEnv("RECRUIT_S3_REGION", "us-east-1"),
			Endpoint:  os.Getenv("RECRUIT_S3_ENDPOINT"),
			AccessKey: os.Getenv("RECRUIT_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("RECRUIT_S3_SECRET_KEY"),
		},
		Jobs: JobsConfig{
			Workers:      2,
			PollInterval: time.Second,
		},
	}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		if err := dec.Decode(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Validate checks required fields and fills zero values with defaults.
// The built-in JWT secret is only accepted when RECRUIT_ENV=development.
func (c *Config) Validate() error {
	var errs []error

	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.DatabasePath == "" {
		errs = append(errs, errors.New("database_path is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt_secret is required"))
	} else if c.JWTSecret == defaultJWTSecret && os.Getenv("RECRUIT_ENV") != "development" {
		errs = append(errs, errors.New("jwt_secret uses the built-in default; set RECRUIT_JWT_SECRET or RECRUIT_ENV=development"))
	}
	if c.APITimeout <= 0 {
		c.APITimeout = 15 * time.Second
	}
	if c.TokenDuration <= 0 {
		c.TokenDuration = 24 * time.Hour
	}

	if c.Upload.MaxBytes <= 0 {
		c.Upload.MaxBytes = 5 << 20
	}
	if len(c.Upload.AllowedExtensions) == 0 {
		c.Upload.AllowedExtensions = []string{"pdf", "jpg", "jpeg", "png"}
	}

	switch strings.ToLower(c.Blob.Driver) {
	case "", "disk":
		c.Blob.Driver = "disk"
		if c.Blob.Dir == "" {
			errs = append(errs, errors.New("blob.dir is required for the disk driver"))
		}
	case "s3":
		c.Blob.Driver = "s3"
		if c.Blob.Bucket == "" {
			errs = append(errs, errors.New("blob.bucket is required for the s3 driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown blob.driver %q", c.Blob.Driver))
	}

	if c.Jobs.Workers <= 0 {
		c.Jobs.Workers = 1
	}
	if c.Jobs.PollInterval <= 0 {
		c.Jobs.PollInterval = time.Second
	}

	return errors.Join(errs...)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return def
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
