package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

type Config struct {
	Database  DatabaseConfig  `toml:"database"`
	Server    ServerConfig    `toml:"server"`
	Broadcast BroadcastConfig `toml:"broadcast"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type ServerConfig struct {
	Bind        string `toml:"bind"`
	APIEndpoint string `toml:"api_endpoint"`
	MCPEndpoint string `toml:"mcp_endpoint"`
}

type BroadcastConfig struct {
	KeepAliveSeconds int `toml:"keepalive_seconds"`
	Buffer           int `toml:"buffer"`
}

func Default(dbPath string) Config {
	return Config{
		Database: DatabaseConfig{
			Path: dbPath,
		},
		Server: ServerConfig{
			Bind:        "127.0.0.1:8080",
			APIEndpoint: "/api/v1",
			MCPEndpoint: "/mcp",
		},
		Broadcast: BroadcastConfig{
			KeepAliveSeconds: 30,
			Buffer:           16,
		},
	}
}

func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database path is required")
	}
	if strings.TrimSpace(c.Server.Bind) == "" {
		return errors.New("server.bind is required")
	}

	api := strings.TrimSpace(c.Server.APIEndpoint)
	mcp := strings.TrimSpace(c.Server.MCPEndpoint)
	if api == "" || !strings.HasPrefix(api, "/") {
		return fmt.Errorf("invalid server.api_endpoint: %q", c.Server.APIEndpoint)
	}
	if mcp == "" || !strings.HasPrefix(mcp, "/") {
		return fmt.Errorf("invalid server.mcp_endpoint: %q", c.Server.MCPEndpoint)
	}
	if strings.Trim(api, "/") == strings.Trim(mcp, "/") {
		return errors.New("server.api_endpoint and server.mcp_endpoint must differ")
	}

	if c.Broadcast.KeepAliveSeconds < 1 {
		return fmt.Errorf("broadcast.keepalive_seconds must be >= 1, got %d", c.Broadcast.KeepAliveSeconds)
	}
	if c.Broadcast.Buffer < 1 {
		return fmt.Errorf("broadcast.buffer must be >= 1, got %d", c.Broadcast.Buffer)
	}

	return nil
}

func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
