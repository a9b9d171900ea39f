package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Ofiflow OfiflowConfig `yaml:"ofiflow"`
	Data    DataConfig    `yaml:"data"`
	OFI     OFIConfig     `yaml:"ofi"`
	Eval    EvalConfig    `yaml:"eval"`
	QC      QCConfig      `yaml:"qc"`
	Batch   BatchConfig   `yaml:"batch"`
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
}

type OfiflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// DataConfig locates the input universe. ProcessedDir holds the parquet
// tick cache, RawDir the gzipped CSV dumps used when a cache entry is
// missing. Start and End bound the session dates, inclusive.
type DataConfig struct {
	ProcessedDir string `yaml:"processed_dir"`
	RawDir       string `yaml:"raw_dir"`
	UniverseFile string `yaml:"universe_file"`
	Start        string `yaml:"start"`
	End          string `yaml:"end"`
}

type OFIConfig struct {
	Levels     int    `yaml:"levels"`
	BarSeconds int    `yaml:"bar_seconds"`
	Agg        string `yaml:"agg"`
	OutputDir  string `yaml:"output_dir"`
	Overwrite  bool   `yaml:"overwrite"`
}

type EvalConfig struct {
	Groups    int    `yaml:"groups"`
	OutputDir string `yaml:"output_dir"`
}

type QCConfig struct {
	OutputDir string `yaml:"output_dir"`
}

type BatchConfig struct {
	MaxWorkers int  `yaml:"max_workers"`
	Lenient    bool `yaml:"lenient"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled          bool   `yaml:"enabled"`
	Bucket           string `yaml:"bucket"`
	Prefix           string `yaml:"prefix"`
	Region           string `yaml:"region"`
	Endpoint         string `yaml:"endpoint"`
	UsePathStyle     bool   `yaml:"path_style"`
	MaxUploadsPerSec int    `yaml:"max_uploads_per_sec"`
	AccessKeyID      string `yaml:"access_key_id"`
	SecretAccessKey  string `yaml:"secret_access_key"`
}

type LoggingConfig struct {
	Level         string                 `yaml:"level"`
	Format        string                 `yaml:"format"`
	Output        string                 `yaml:"output"`
	MaxAge        int                    `yaml:"max_age"`
	Fields        map[string]interface{} `yaml:"fields"`
	DashboardName string                 `yaml:"dashboard_name"`
}

// configEnvPaths maps application environments to the configuration file
// used when the caller does not point at a specific one.
var configEnvPaths = map[string]string{
	environmentDevelopment: "config.development.yaml",
	environmentProduction:  "config.yaml",
	environmentStaging:     "config.staging.yaml",
}

const defaultConfigPath = "config.yaml"

// ResolveConfigPath picks the configuration file for the current APP_ENV
// when the caller passed the default path.
func ResolveConfigPath(path string) string {
	resolved := resolveEnvSpecificPath(path, defaultConfigPath, configEnvPaths)
	if resolved != defaultConfigPath {
		if _, err := os.Stat(resolved); err != nil {
			return path
		}
	}
	return resolved
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		OFI: OFIConfig{
			Levels:     5,
			BarSeconds: 60,
			Agg:        "sum",
		},
		Eval: EvalConfig{
			Groups: 5,
		},
		Batch: BatchConfig{
			MaxWorkers: 4,
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override S3 settings from environment variables if available
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}
	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

var sessionDateRegexp = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

func validateConfig(cfg *Config) error {
	if cfg.Ofiflow.Name == "" {
		return fmt.Errorf("ofiflow.name is required")
	}
	if cfg.Ofiflow.Version == "" {
		return fmt.Errorf("ofiflow.version is required")
	}

	if cfg.Data.ProcessedDir == "" && cfg.Data.RawDir == "" {
		return fmt.Errorf("at least one of data.processed_dir and data.raw_dir is required")
	}
	// Production runs cover the whole configured universe; refuse to start
	// on an ad-hoc config that would silently process nothing.
	if IsProductionLike(AppEnvironment()) && cfg.Data.UniverseFile == "" {
		return fmt.Errorf("data.universe_file is required in %s", AppEnvironment())
	}
	if cfg.Data.Start != "" && !sessionDateRegexp.MatchString(cfg.Data.Start) {
		return fmt.Errorf("data.start %q must use YYYY-MM-DD", cfg.Data.Start)
	}
	if cfg.Data.End != "" && !sessionDateRegexp.MatchString(cfg.Data.End) {
		return fmt.Errorf("data.end %q must use YYYY-MM-DD", cfg.Data.End)
	}
	if cfg.Data.Start != "" && cfg.Data.End != "" && cfg.Data.Start > cfg.Data.End {
		return fmt.Errorf("data.start %q is after data.end %q", cfg.Data.Start, cfg.Data.End)
	}

	if cfg.OFI.Levels < 1 || cfg.OFI.Levels > 5 {
		return fmt.Errorf("ofi.levels must be between 1 and 5")
	}
	if cfg.OFI.BarSeconds <= 0 {
		return fmt.Errorf("ofi.bar_seconds must be greater than 0")
	}
	if cfg.OFI.Agg != "sum" && cfg.OFI.Agg != "mean" {
		return fmt.Errorf("ofi.agg must be sum or mean, got %q", cfg.OFI.Agg)
	}
	if cfg.OFI.OutputDir == "" {
		return fmt.Errorf("ofi.output_dir is required")
	}

	if cfg.Eval.Groups < 2 {
		return fmt.Errorf("eval.groups must be at least 2")
	}

	if cfg.Batch.MaxWorkers <= 0 {
		return fmt.Errorf("batch.max_workers must be greater than 0")
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if cfg.Storage.S3.AccessKeyID == "" || cfg.Storage.S3.SecretAccessKey == "" {
			return fmt.Errorf("storage.s3.access_key_id and storage.s3.secret_access_key are required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
