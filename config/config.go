package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type SystemConfig struct {
	Workdir string `yaml:"workdir"`
	Debug   bool   `yaml:"debug"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn" validate:"required"`
}

type Tr069Config struct {
	Listen string `yaml:"listen" validate:"required"`
	// Basic-auth credentials CPEs must present on inbound requests.
	Username string `yaml:"username" validate:"required"`
	Password string `yaml:"password" validate:"required"`
	// Password used when knocking on a CPE's ConnectionRequestURL.
	ConnectionRequestPassword string `yaml:"connection_request_password"`
	Realm                     string `yaml:"realm"`
}

type Config struct {
	System   SystemConfig   `yaml:"system"`
	Database DatabaseConfig `yaml:"database"`
	Tr069    Tr069Config    `yaml:"tr069"`
}

func Default() *Config {
	return &Config{
		System: SystemConfig{
			Workdir: "/var/acs",
			Debug:   false,
		},
		Database: DatabaseConfig{
			DSN: "acs.db",
		},
		Tr069: Tr069Config{
			Listen: ":8106",
			Realm:  "acs",
		},
	}
}

// Load reads a YAML config file over the defaults. A missing path returns
// the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if cfg.Tr069.Realm == "" {
		cfg.Tr069.Realm = "acs"
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
