package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration decodes Go duration strings ("5s", "1m") from YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the YAML configuration for the lattice CLI.
type Config struct {
	Redis struct {
		Address string `yaml:"address"`
		Prefix  string `yaml:"prefix"`
	} `yaml:"redis"`
	Namespace struct {
		ISD     int    `yaml:"isd"`
		AS      int    `yaml:"as"`
		Service string `yaml:"service"`
	} `yaml:"namespace"`
	MemberID string `yaml:"member_id"`
	Timeouts struct {
		Startup Duration `yaml:"startup"`
		Conn    Duration `yaml:"conn"`
		Lock    Duration `yaml:"lock"`
	} `yaml:"timeouts"`
	Cache struct {
		Path   string   `yaml:"path"`
		MaxAge Duration `yaml:"max_age"`
	} `yaml:"cache"`
	DebugAddr string `yaml:"debug_addr"`
	LogLevel  string `yaml:"log_level"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	var cfg Config
	cfg.Redis.Address = "localhost:6379"
	cfg.Namespace.ISD = 1
	cfg.Namespace.AS = 1
	cfg.Namespace.Service = "bs"
	cfg.Timeouts.Startup = Duration(time.Second)
	cfg.Timeouts.Conn = Duration(5 * time.Second)
	cfg.Timeouts.Lock = Duration(5 * time.Second)
	cfg.Cache.Path = "pcb"
	cfg.Cache.MaxAge = Duration(time.Minute)
	cfg.LogLevel = "info"
	return cfg
}

// LoadConfig reads a YAML config file on top of the defaults. An empty
// member_id falls back to the hostname.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config: %w", err)
		}
	}
	if cfg.MemberID == "" {
		host, err := os.Hostname()
		if err != nil {
			return cfg, fmt.Errorf("no member_id and no hostname: %w", err)
		}
		cfg.MemberID = host
	}
	return cfg, nil
}
