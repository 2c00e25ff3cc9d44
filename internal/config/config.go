package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultPort           = 8000
	DefaultMaxUploadBytes = 25 << 20
	DefaultVADThreshold   = 0.5
	DefaultStreamPath     = "/ws"
)

// Config is the complete service configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server" toml:"server"`
	Auth    AuthConfig    `yaml:"auth" toml:"auth"`
	Engine  EngineConfig  `yaml:"engine" toml:"engine"`
	Ingest  IngestConfig  `yaml:"ingest" toml:"ingest"`
	VAD     VADConfig     `yaml:"vad" toml:"vad"`
	Stream  StreamConfig  `yaml:"stream" toml:"stream"`
	Storage StorageConfig `yaml:"storage" toml:"storage"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
}

type ServerConfig struct {
	Address         string   `yaml:"address" toml:"address"`
	Port            int      `yaml:"port" toml:"port"`
	MaxConnections  int      `yaml:"max_connections" toml:"max_connections"`
	ReadTimeout     int      `yaml:"read_timeout" toml:"read_timeout"`         // seconds
	WriteTimeout    int      `yaml:"write_timeout" toml:"write_timeout"`       // seconds
	ShutdownTimeout int      `yaml:"shutdown_timeout" toml:"shutdown_timeout"` // seconds
	CORSOrigins     []string `yaml:"cors_origins" toml:"cors_origins"`
}

type AuthConfig struct {
	RequireAuth bool   `yaml:"require_auth" toml:"require_auth"`
	APIToken    string `yaml:"api_token" toml:"api_token"`
}

type EngineConfig struct {
	Backend       string `yaml:"backend" toml:"backend"` // stub | whisper-http | openai
	Endpoint      string `yaml:"endpoint" toml:"endpoint"`
	APIKey        string `yaml:"api_key" toml:"api_key"`
	Model         string `yaml:"model" toml:"model"`
	Timeout       int    `yaml:"timeout" toml:"timeout"` // seconds
	MaxConcurrent int    `yaml:"max_concurrent" toml:"max_concurrent"`
}

type IngestConfig struct {
	MaxUploadBytes int64  `yaml:"max_upload_bytes" toml:"max_upload_bytes"`
	TempDir        string `yaml:"temp_dir" toml:"temp_dir"`
}

type VADConfig struct {
	DefaultThreshold float64 `yaml:"default_threshold" toml:"default_threshold"`
}

type StreamConfig struct {
	Path        string `yaml:"path" toml:"path"`
	IdleTimeout int    `yaml:"idle_timeout" toml:"idle_timeout"` // seconds, 0 = none
}

type StorageConfig struct {
	Driver string `yaml:"driver" toml:"driver"` // none | postgres | sqlite
	DSN    string `yaml:"dsn" toml:"dsn"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"` // json | console
}

// Default returns a config that passes Validate as is.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Address:         "0.0.0.0",
			Port:            DefaultPort,
			ReadTimeout:     60,
			WriteTimeout:    300,
			ShutdownTimeout: 10,
			CORSOrigins:     []string{"*"},
		},
		Engine:  EngineConfig{Backend: BackendStub, Timeout: 120},
		Ingest:  IngestConfig{MaxUploadBytes: DefaultMaxUploadBytes},
		VAD:     VADConfig{DefaultThreshold: DefaultVADThreshold},
		Stream:  StreamConfig{Path: DefaultStreamPath},
		Storage: StorageConfig{Driver: StorageNone},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// Validate fills unset values with defaults and rejects invalid ones.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("auth config: %w", err)
	}
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine config: %w", err)
	}
	if err := c.Ingest.Validate(); err != nil {
		return fmt.Errorf("ingest config: %w", err)
	}
	if err := c.VAD.Validate(); err != nil {
		return fmt.Errorf("vad config: %w", err)
	}
	if err := c.Stream.Validate(); err != nil {
		return fmt.Errorf("stream config: %w", err)
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

func (s *ServerConfig) Validate() error {
	if s.Port == 0 {
		s.Port = DefaultPort
	}
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}
	if s.MaxConnections < 0 {
		return fmt.Errorf("max_connections cannot be negative, got %d", s.MaxConnections)
	}
	if s.ReadTimeout < 0 || s.WriteTimeout < 0 || s.ShutdownTimeout < 0 {
		return fmt.Errorf("timeouts cannot be negative")
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = 10
	}
	return nil
}

func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Address, s.Port)
}

func (s *ServerConfig) GetReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

func (s *ServerConfig) GetWriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

func (s *ServerConfig) GetShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeout) * time.Second
}

// Validate accepts require_auth without a token: every request is then
// rejected, which the caller is expected to log at startup.
func (a *AuthConfig) Validate() error {
	a.APIToken = strings.TrimSpace(a.APIToken)
	return nil
}

const (
	BackendStub        = "stub"
	BackendWhisperHTTP = "whisper-http"
	BackendOpenAI      = "openai"
)

func (e *EngineConfig) Validate() error {
	e.Backend = strings.ToLower(strings.TrimSpace(e.Backend))
	if e.Backend == "" {
		e.Backend = BackendStub
	}
	switch e.Backend {
	case BackendStub:
	case BackendWhisperHTTP:
		if e.Endpoint == "" {
			return fmt.Errorf("endpoint cannot be empty for backend %q", e.Backend)
		}
	case BackendOpenAI:
		if e.Model == "" {
			e.Model = "whisper-1"
		}
	default:
		return fmt.Errorf("unknown backend %q", e.Backend)
	}
	if e.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative, got %d", e.Timeout)
	}
	if e.MaxConcurrent < 0 {
		return fmt.Errorf("max_concurrent cannot be negative, got %d", e.MaxConcurrent)
	}
	return nil
}

func (e *EngineConfig) GetTimeout() time.Duration {
	return time.Duration(e.Timeout) * time.Second
}

func (i *IngestConfig) Validate() error {
	if i.MaxUploadBytes == 0 {
		i.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if i.MaxUploadBytes < 0 {
		return fmt.Errorf("max_upload_bytes cannot be negative, got %d", i.MaxUploadBytes)
	}
	return nil
}

// Validate keeps 0 as a real threshold; the default comes from Default().
func (v *VADConfig) Validate() error {
	if v.DefaultThreshold < 0 || v.DefaultThreshold > 1 {
		return fmt.Errorf("default_threshold must be between 0 and 1, got %f", v.DefaultThreshold)
	}
	return nil
}

func (s *StreamConfig) Validate() error {
	if s.Path == "" {
		s.Path = DefaultStreamPath
	}
	if !strings.HasPrefix(s.Path, "/") {
		return fmt.Errorf("path must start with '/', got %q", s.Path)
	}
	if s.IdleTimeout < 0 {
		return fmt.Errorf("idle_timeout cannot be negative, got %d", s.IdleTimeout)
	}
	return nil
}

func (s *StreamConfig) GetIdleTimeout() time.Duration {
	return time.Duration(s.IdleTimeout) * time.Second
}

const (
	StorageNone     = "none"
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
)

func (s *StorageConfig) Validate() error {
	s.Driver = strings.ToLower(strings.TrimSpace(s.Driver))
	switch s.Driver {
	case "", StorageNone:
		s.Driver = StorageNone
	case StoragePostgres:
		if s.DSN == "" {
			return fmt.Errorf("dsn cannot be empty for driver %q", s.Driver)
		}
	case StorageSQLite:
		if s.DSN == "" {
			s.DSN = "transcripts.db"
		}
	default:
		return fmt.Errorf("unknown driver %q", s.Driver)
	}
	return nil
}

func (l *LoggingConfig) Validate() error {
	l.Level = strings.ToLower(strings.TrimSpace(l.Level))
	switch l.Level {
	case "":
		l.Level = "info"
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown level %q", l.Level)
	}
	switch l.Format {
	case "":
		l.Format = "json"
	case "json", "console":
	default:
		return fmt.Errorf("unknown format %q", l.Format)
	}
	return nil
}
