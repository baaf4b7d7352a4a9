package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the server configuration, loaded from YAML on top of defaults.
type Config struct {
	Addr     string `yaml:"addr"`
	LogLevel string `yaml:"log_level"`

	// SendBuffer is the per-connection outbound queue size.
	SendBuffer      int `yaml:"send_buffer"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	// IdleTimeoutSec evicts disconnected sessions after this long; 0 keeps
	// them forever.
	IdleTimeoutSec int `yaml:"idle_timeout_sec"`

	// ArchivePath enables the SQLite event archive when non-empty.
	ArchivePath string `yaml:"archive_path"`

	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig selects the redis stream backend for token delivery.
type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

func Default() Config {
	return Config{
		Addr:            ":8080",
		LogLevel:        "info",
		SendBuffer:      64,
		WriteTimeoutSec: 10,
		IdleTimeoutSec:  600,
		Redis:           RedisConfig{Addr: "localhost:6379"},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "read config %s", path)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Addr == "" {
		return errors.New("addr is empty")
	}
	if c.SendBuffer < 0 {
		return errors.New("send_buffer is negative")
	}
	if c.WriteTimeoutSec < 0 {
		return errors.New("write_timeout_sec is negative")
	}
	if c.IdleTimeoutSec < 0 {
		return errors.New("idle_timeout_sec is negative")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errors.New("redis.enabled is set but redis.addr is empty")
	}
	return nil
}
