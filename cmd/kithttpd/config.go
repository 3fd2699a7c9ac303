package main

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gitvzz/kitHttp/internal/log"
)

// Config is the kithttpd configuration file.
type Config struct {
	Host        string      `yaml:"host"`
	Port        int         `yaml:"port"`
	SecretKey   string      `yaml:"secret_key"`
	RoutePrefix string      `yaml:"route_prefix"`
	Static      StaticConf  `yaml:"static"`
	Log         *log.Config `yaml:"log"`
}

type StaticConf struct {
	Prefix string `yaml:"prefix"`
	Path   string `yaml:"path"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Host:   "0.0.0.0",
		Port:   8080,
		Static: StaticConf{Prefix: "/static"},
		Log:    log.DefaultConfig(),
	}
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, err
	}
	if cfg.Log == nil {
		cfg.Log = log.DefaultConfig()
	}
	return cfg, nil
}
