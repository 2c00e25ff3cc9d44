package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Loader reads an optional config file named by CONFIG_PATH and then applies
// environment overrides. Tests can override Lookup and ReadFile.
type Loader struct {
	Lookup   func(string) (string, bool)
	ReadFile func(string) ([]byte, error)
}

func (l Loader) Load() (Config, error) {
	if l.Lookup == nil {
		l.Lookup = os.LookupEnv
	}
	if l.ReadFile == nil {
		l.ReadFile = os.ReadFile
	}

	cfg := Default()

	if path, ok := l.Lookup("CONFIG_PATH"); ok && strings.TrimSpace(path) != "" {
		if err := l.applyFile(strings.TrimSpace(path), &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := l.applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (l Loader) applyFile(path string, cfg *Config) error {
	data, err := l.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		_, err = toml.Decode(string(data), cfg)
	default:
		return fmt.Errorf("unsupported config file extension %q", filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (l Loader) applyEnv(cfg *Config) error {
	if err := overrideInt(l.Lookup, "PORT", &cfg.Server.Port); err != nil {
		return err
	}
	if err := overrideBool(l.Lookup, "REQUIRE_AUTH", &cfg.Auth.RequireAuth); err != nil {
		return err
	}
	overrideString(l.Lookup, "API_TOKEN", &cfg.Auth.APIToken)
	overrideString(l.Lookup, "ENGINE_BACKEND", &cfg.Engine.Backend)
	overrideString(l.Lookup, "ENGINE_ENDPOINT", &cfg.Engine.Endpoint)
	overrideString(l.Lookup, "OPENAI_API_KEY", &cfg.Engine.APIKey)
	overrideString(l.Lookup, "ENGINE_API_KEY", &cfg.Engine.APIKey)
	overrideString(l.Lookup, "ENGINE_MODEL", &cfg.Engine.Model)
	overrideString(l.Lookup, "TEMP_DIR", &cfg.Ingest.TempDir)
	overrideString(l.Lookup, "STORAGE_DRIVER", &cfg.Storage.Driver)
	overrideString(l.Lookup, "LOG_LEVEL", &cfg.Logging.Level)

	// DATABASE_URL включает postgres, если драйвер не задан явно
	if dsn, ok := l.Lookup("DATABASE_URL"); ok && strings.TrimSpace(dsn) != "" {
		cfg.Storage.DSN = strings.TrimSpace(dsn)
		if cfg.Storage.Driver == "" || cfg.Storage.Driver == StorageNone {
			cfg.Storage.Driver = StoragePostgres
		}
	}
	return nil
}

func overrideString(lookup func(string) (string, bool), key string, target *string) {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		*target = strings.TrimSpace(value)
	}
}

func overrideInt(lookup func(string) (string, bool), key string, target *int) error {
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*target = n
	return nil
}

func overrideBool(lookup func(string) (string, bool), key string, target *bool) error {
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*target = b
	return nil
}
