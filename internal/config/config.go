package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Device is one entry of the known-device inventory. The input validator
// only accepts investigation targets listed here.
type Device struct {
	Name    string `mapstructure:"name"`
	Address string `mapstructure:"address"`
	Role    string `mapstructure:"role"`
	Vendor  string `mapstructure:"vendor"`
}

type Config struct {
	MaxRetries     int           `mapstructure:"max_retries"`
	FanoutLimit    int           `mapstructure:"fanout_limit"`
	SessionTimeout time.Duration `mapstructure:"session_timeout"`

	PlansDir      string `mapstructure:"plans_dir"`
	DefaultIntent string `mapstructure:"default_intent"`
	ToolsFile     string `mapstructure:"tools_file"`
	LearningDB    string `mapstructure:"learning_db"`
	LogFile       string `mapstructure:"log_file"`

	LLMBackend string `mapstructure:"llm_backend"`
	LLMModel   string `mapstructure:"llm_model"`
	OllamaHost string `mapstructure:"ollama_host"`

	DeviceScheme string   `mapstructure:"device_scheme"`
	Devices      []Device `mapstructure:"devices"`
}

// Load reads netsleuth.yaml (or an explicit path) with NETSLEUTH_*
// environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("netsleuth")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.netsleuth")
	}
	v.SetEnvPrefix("netsleuth")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("max_retries", 2)
	v.SetDefault("fanout_limit", 4)
	v.SetDefault("session_timeout", "5m")
	v.SetDefault("plans_dir", "plans")
	v.SetDefault("default_intent", "device_health")
	v.SetDefault("tools_file", "tools.json")
	v.SetDefault("learning_db", "netsleuth.db")
	v.SetDefault("log_file", "netsleuth.log")
	v.SetDefault("llm_backend", "gemini")
	v.SetDefault("device_scheme", "http")

	if err := v.ReadInConfig(); err != nil {
		// Missing file is fine when everything has a default; a broken
		// file is not.
		var nf viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &nf) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0, got %d", c.MaxRetries)
	}
	if c.FanoutLimit < 1 {
		return fmt.Errorf("fanout_limit must be >= 1, got %d", c.FanoutLimit)
	}
	seen := map[string]struct{}{}
	for _, d := range c.Devices {
		name := strings.ToLower(strings.TrimSpace(d.Name))
		if name == "" {
			return fmt.Errorf("device inventory entry with empty name")
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("duplicate device %q in inventory", d.Name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// Inventory lookup by name, case-insensitive.
func (c *Config) FindDevice(name string) (Device, bool) {
	for _, d := range c.Devices {
		if strings.EqualFold(d.Name, name) {
			return d, true
		}
	}
	return Device{}, false
}
