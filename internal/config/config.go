package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Sources       Sources       `yaml:"sources"`
	Fetch         Fetch         `yaml:"fetch"`
	Processing    Processing    `yaml:"processing"`
	Summarization Summarization `yaml:"summarization"`
	Distribution  Distribution  `yaml:"distribution"`
	Storage       Storage       `yaml:"storage"`
	Output        Output        `yaml:"output"`
	Schedule      Schedule      `yaml:"schedule"`
	Server        Server        `yaml:"server"`
	Logging       Logging       `yaml:"logging"`

	Secrets Secrets `yaml:"-"`
}

type Sources struct {
	FastDomains          []string      `yaml:"fast_domains"`
	UserAgent            string        `yaml:"user_agent"`
	RequestTimeout       time.Duration `yaml:"request_timeout"`
	GroupedRatePerSecond float64       `yaml:"grouped_rate_per_second"`
}

type Fetch struct {
	MaxRetries        int           `yaml:"max_retries"`
	FastRetryDelay    time.Duration `yaml:"fast_retry_delay"`
	GroupedRetryDelay time.Duration `yaml:"grouped_retry_delay"`
	MaxFastWorkers    int           `yaml:"max_fast_workers"`
}

type Processing struct {
	Workers        int `yaml:"workers"`
	MaxSuggestions int `yaml:"max_suggestions"`
	OCR            OCR `yaml:"ocr"`
}

type OCR struct {
	Enabled  bool          `yaml:"enabled"`
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

type Summarization struct {
	Provider        string  `yaml:"provider"`
	Model           string  `yaml:"model"`
	OllamaURL       string  `yaml:"ollama_url"`
	OpenAIModel     string  `yaml:"openai_model"`
	Temperature     float64 `yaml:"temperature"`
	MaxTokens       int     `yaml:"max_tokens"`
	MaxContentChars int     `yaml:"max_content_chars"`
	RepairJSON      bool    `yaml:"repair_json"`
}

type Distribution struct {
	Workers        int    `yaml:"workers"`
	Brand          string `yaml:"brand"`
	HideRecipients bool   `yaml:"hide_recipients"`
	SMTP           SMTP   `yaml:"smtp"`
}

type SMTP struct {
	Host    string        `yaml:"host"`
	Port    int           `yaml:"port"`
	UseSSL  bool          `yaml:"use_ssl"`
	Timeout time.Duration `yaml:"timeout"`
}

type Storage struct {
	Driver string `yaml:"driver"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Schedule struct {
	Time     string `yaml:"time"`
	Timezone string `yaml:"timezone"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Secrets are read from the environment only, never from YAML.
type Secrets struct {
	GoogleAPIKey  string `env:"GOOGLE_API_KEY"`
	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	EmailAddress  string `env:"EMAIL_ADDRESS"`
	EmailPassword string `env:"EMAIL_PASSWORD"`
	PostgresDSN   string `env:"NOTICEFLOW_POSTGRES_DSN"`
}

// ConfigDir returns the XDG config directory for noticeflow.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "noticeflow")
}

// DataDir returns the XDG data directory for noticeflow.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "noticeflow")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/noticeflow/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'noticeflow init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file, then overlays secrets from the
// environment and any .env file next to the config or in the working directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}

	loadDotEnv(filepath.Join(filepath.Dir(path), ".env"), ".env")
	if err := cfg.loadSecrets(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Sources: Sources{
			FastDomains:          []string{"scatch.ssu.ac.kr"},
			UserAgent:            "Mozilla/5.0 (compatible; noticeflow/1.0)",
			RequestTimeout:       15 * time.Second,
			GroupedRatePerSecond: 1,
		},
		Fetch: Fetch{
			MaxRetries:        2,
			FastRetryDelay:    500 * time.Millisecond,
			GroupedRetryDelay: time.Second,
			MaxFastWorkers:    20,
		},
		Processing: Processing{
			Workers:        20,
			MaxSuggestions: 10,
			OCR: OCR{
				Endpoint: "http://localhost:8866/ocr",
				Timeout:  30 * time.Second,
			},
		},
		Summarization: Summarization{
			Provider:        "gemini",
			Model:           "gemini-2.5-flash",
			OllamaURL:       "http://localhost:11434",
			OpenAIModel:     "gpt-4o-mini",
			Temperature:     0.2,
			MaxTokens:       2048,
			MaxContentChars: 20000,
		},
		Distribution: Distribution{
			Workers: 20,
			Brand:   "SSU-pport 알리미",
			SMTP: SMTP{
				Host:    "smtp.gmail.com",
				Port:    465,
				UseSSL:  true,
				Timeout: 30 * time.Second,
			},
		},
		Storage:  Storage{Driver: "sqlite"},
		Schedule: Schedule{Time: "09:00", Timezone: "Asia/Seoul"},
		Server:   Server{Port: 8000},
		Logging:  Logging{Level: "INFO", MaxSizeMB: 20, MaxBackups: 5, MaxAgeDays: 30},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadSecrets() error {
	if err := env.Parse(&c.Secrets); err != nil {
		return fmt.Errorf("reading secrets from environment: %w", err)
	}
	return nil
}

// loadDotEnv loads each existing file without overriding variables that are
// already set in the process environment.
func loadDotEnv(paths ...string) {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		_ = godotenv.Load(p)
	}
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// IsFastDomain reports whether host is on the high-concurrency allow-list.
func (c *Config) IsFastDomain(host string) bool {
	for _, d := range c.Sources.FastDomains {
		if d == host {
			return true
		}
	}
	return false
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
