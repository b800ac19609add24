package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the variable that selects the config file.
const EnvConfigPath = "TABFLOW_CONFIG"

// Named type to allow reuse and clearer code
type KafkaConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Brokers        []string `yaml:"brokers"`
	Topic          string   `yaml:"topic"`
	Key            string   `yaml:"key"` // column used as message key, optional
	SchemaRegistry string   `yaml:"schemaRegistry"`
	UseAvro        bool     `yaml:"useAvro"`
}

type S3Config struct {
	Enabled   bool   `yaml:"enabled"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Endpoint  string `yaml:"endpoint"`
	Prefix    string `yaml:"prefix"`
}

type OutputConfig struct {
	Path  string      `yaml:"path"` // .csv, .parquet or .json
	Avro  string      `yaml:"avro"` // optional Avro object container file
	Kafka KafkaConfig `yaml:"kafka"`
}

type TrackingConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"`
	Experiment string `yaml:"experiment"`

	Artifacts struct {
		Dir string   `yaml:"dir"`
		S3  S3Config `yaml:"s3"`
	} `yaml:"artifacts"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type AppConfig struct {
	Input struct {
		Path string `yaml:"path"`
	} `yaml:"input"`

	Transform struct {
		Spec string `yaml:"spec"`
	} `yaml:"transform"`

	Output   OutputConfig   `yaml:"output"`
	Tracking TrackingConfig `yaml:"tracking"`
	Log      LogConfig      `yaml:"log"`

	Engine struct {
		DuckDBMemory string `yaml:"duckdbMemory"`
	} `yaml:"engine"`
}

// Default returns the configuration used for every key the file leaves out.
func Default() AppConfig {
	cfg := AppConfig{}
	cfg.Tracking.Path = "data/tracking"
	cfg.Tracking.Experiment = "default"
	cfg.Tracking.Artifacts.Dir = "data/artifacts"
	cfg.Log.Level = "info"
	cfg.Engine.DuckDBMemory = "1GB"
	return cfg
}

// LoadEnv reads a .env file into the process environment. A missing file is
// not an error; variables already set are kept.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// Path returns $TABFLOW_CONFIG when set, otherwise fallback.
func Path(fallback string) string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	return fallback
}

// Load reads and parses a YAML config file over the defaults, then applies
// TABFLOW_* environment overrides and validates the result.
func Load(path string) (AppConfig, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("config file not found: %s", path)
		}
		return cfg, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("error parsing config file: %w", err)
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *AppConfig) {
	overrides := []struct {
		env    string
		target *string
	}{
		{"TABFLOW_INPUT", &cfg.Input.Path},
		{"TABFLOW_SPEC", &cfg.Transform.Spec},
		{"TABFLOW_OUTPUT", &cfg.Output.Path},
		{"TABFLOW_LOG_LEVEL", &cfg.Log.Level},
		{"TABFLOW_EXPERIMENT", &cfg.Tracking.Experiment},
		{"TABFLOW_S3_ACCESS_KEY", &cfg.Tracking.Artifacts.S3.AccessKey},
		{"TABFLOW_S3_SECRET_KEY", &cfg.Tracking.Artifacts.S3.SecretKey},
	}
	for _, o := range overrides {
		if v, ok := os.LookupEnv(o.env); ok {
			*o.target = v
		}
	}
}

// Validate reports the first inconsistency in the configuration.
func (c AppConfig) Validate() error {
	if c.Input.Path == "" {
		return errors.New("input.path is required")
	}
	if c.Transform.Spec == "" {
		return errors.New("transform.spec is required")
	}

	k := c.Output.Kafka
	if k.Enabled {
		if len(k.Brokers) == 0 || k.Topic == "" {
			return errors.New("output.kafka needs brokers and topic when enabled")
		}
		if k.UseAvro && k.SchemaRegistry == "" {
			return errors.New("output.kafka.schemaRegistry is required when useAvro is set")
		}
	}

	s3 := c.Tracking.Artifacts.S3
	if c.Tracking.Enabled && s3.Enabled && (s3.Bucket == "" || s3.Region == "") {
		return errors.New("tracking.artifacts.s3 needs bucket and region when enabled")
	}
	return nil
}
