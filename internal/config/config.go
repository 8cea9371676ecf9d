package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/bryanwahyu/docrisk/internal/domain/structural"
)

type Config struct {
	Server struct {
		Port           int           `yaml:"port" toml:"port"`
		ReadTimeout    time.Duration `yaml:"readTimeout" toml:"readTimeout"`
		WriteTimeout   time.Duration `yaml:"writeTimeout" toml:"writeTimeout"`
		AllowedOrigins []string      `yaml:"allowedOrigins" toml:"allowedOrigins"`
		// uploads per tenant: burst size and refill per minute
		UploadBurst     int `yaml:"uploadBurst" toml:"uploadBurst"`
		UploadPerMinute int `yaml:"uploadPerMinute" toml:"uploadPerMinute"`
	} `yaml:"server" toml:"server"`

	Database struct {
		Driver   string `yaml:"driver" toml:"driver"` // mysql | postgres | sqlite
		Host     string `yaml:"host" toml:"host"`
		Port     int    `yaml:"port" toml:"port"`
		User     string `yaml:"user" toml:"user"`
		Password string `yaml:"password" toml:"password"`
		Name     string `yaml:"name" toml:"name"`
		SSLMode  string `yaml:"sslMode" toml:"sslMode"`
		Path     string `yaml:"path" toml:"path"` // sqlite file
	} `yaml:"database" toml:"database"`

	Minio struct {
		Endpoint   string `yaml:"endpoint" toml:"endpoint"`
		AccessKey  string `yaml:"accessKey" toml:"accessKey"`
		SecretKey  string `yaml:"secretKey" toml:"secretKey"`
		BucketName string `yaml:"bucketName" toml:"bucketName"`
		Region     string `yaml:"region" toml:"region"`
		UseSSL     bool   `yaml:"useSSL" toml:"useSSL"`
	} `yaml:"minio" toml:"minio"`

	OpenAI struct {
		APIKey      string `yaml:"apiKey" toml:"apiKey"`
		BaseURL     string `yaml:"baseURL" toml:"baseURL"`
		Model       string `yaml:"model" toml:"model"`
		VisionModel string `yaml:"visionModel" toml:"visionModel"`
	} `yaml:"openai" toml:"openai"`

	Screening struct {
		WatchlistPath string `yaml:"watchlistPath" toml:"watchlistPath"`
	} `yaml:"screening" toml:"screening"`

	Pipeline struct {
		StageTimeout      time.Duration `yaml:"stageTimeout" toml:"stageTimeout"`
		ClassifierTimeout time.Duration `yaml:"classifierTimeout" toml:"classifierTimeout"`
		RetryBackoff      time.Duration `yaml:"retryBackoff" toml:"retryBackoff"`
		Disabled          []string      `yaml:"disabled" toml:"disabled"`
		Workers           int           `yaml:"workers" toml:"workers"`
		ImageWorkers      int           `yaml:"imageWorkers" toml:"imageWorkers"`
		MaxUploadMB       int64         `yaml:"maxUploadMB" toml:"maxUploadMB"`
	} `yaml:"pipeline" toml:"pipeline"`

	// Tools overrides the authoring-tool trust lists.
	Tools *structural.ToolPolicy `yaml:"tools" toml:"tools"`

	Logging struct {
		Level  string `yaml:"level" toml:"level"`
		Format string `yaml:"format" toml:"format"`
	} `yaml:"logging" toml:"logging"`

	Auth struct {
		// APIKeys maps tenant ID to its key. Empty disables authentication.
		APIKeys map[string]string `yaml:"apiKeys" toml:"apiKeys"`
	} `yaml:"auth" toml:"auth"`
}

// Path returns CONFIG_PATH or config.yaml.
func Path() string {
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	return "config.yaml"
}

// Load baca file config (.yaml/.yml or .toml), then fills defaults and
// applies environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a config with only defaults, for the CLI.
func Default() *Config {
	var cfg Config
	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyEnv() {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.OpenAI.APIKey = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		c.Minio.SecretKey = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 3 * time.Minute
	}
	if c.Server.UploadBurst == 0 {
		c.Server.UploadBurst = 10
	}
	if c.Server.UploadPerMinute == 0 {
		c.Server.UploadPerMinute = 30
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "docrisk.db"
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "gpt-4o-mini"
	}
	if c.OpenAI.VisionModel == "" {
		c.OpenAI.VisionModel = c.OpenAI.Model
	}
	if c.Pipeline.StageTimeout == 0 {
		c.Pipeline.StageTimeout = 30 * time.Second
	}
	if c.Pipeline.ClassifierTimeout == 0 {
		c.Pipeline.ClassifierTimeout = 20 * time.Second
	}
	if c.Pipeline.RetryBackoff == 0 {
		c.Pipeline.RetryBackoff = 500 * time.Millisecond
	}
	if c.Pipeline.Workers == 0 {
		c.Pipeline.Workers = 4
	}
	if c.Pipeline.MaxUploadMB == 0 {
		c.Pipeline.MaxUploadMB = 25
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver: unsupported %q", c.Database.Driver)
	}
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline.workers must be positive")
	}
	return nil
}

// ToolPolicy returns the configured trust lists or the built-in ones.
func (c *Config) ToolPolicy() structural.ToolPolicy {
	if c.Tools == nil {
		return structural.DefaultToolPolicy()
	}
	return *c.Tools
}

// DisabledStages as a set.
func (c *Config) DisabledStages() map[string]bool {
	out := make(map[string]bool, len(c.Pipeline.Disabled))
	for _, s := range c.Pipeline.Disabled {
		out[strings.ToLower(strings.TrimSpace(s))] = true
	}
	return out
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// PostgresDSN builds a lib/pq connection string.
func (c *Config) PostgresDSN() string {
	ssl := c.Database.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User, c.Database.Password, c.Database.Name, ssl)
}

// MaxUploadBytes is the request body limit for document uploads.
func (c *Config) MaxUploadBytes() int64 {
	return c.Pipeline.MaxUploadMB << 20
}
