package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Frame         FrameConfig         `yaml:"frame"`
	Session       SessionConfig       `yaml:"session"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Summarizer    SummarizerConfig    `yaml:"summarizer"`
	Mongo         MongoConfig         `yaml:"mongo"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int    `yaml:"port"`
	BindAddress     string `yaml:"bind_address"`
	ShutdownTimeout int    `yaml:"shutdown_timeout"` // seconds
}

// FrameConfig contains inbound audio frame parameters
type FrameConfig struct {
	HeaderLen int `yaml:"header_len"` // bytes of metadata prefix on binary frames
}

// SessionConfig contains session lifecycle parameters
type SessionConfig struct {
	CloseTimeout     int `yaml:"close_timeout"`     // seconds to wait for final transcripts
	SummarizeTimeout int `yaml:"summarize_timeout"` // seconds allowed for summarization
}

// TranscriptionConfig contains the realtime speech-to-text configuration
type TranscriptionConfig struct {
	URL            string `yaml:"url"`
	APIKey         string `yaml:"api_key"`
	Language       string `yaml:"language"`
	SampleRate     int    `yaml:"sample_rate"`
	EnablePartials bool   `yaml:"enable_partials"`
	ConnectTimeout int    `yaml:"connect_timeout"` // seconds
}

// SummarizerConfig contains the chat completion configuration
type SummarizerConfig struct {
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	Timeout     int     `yaml:"timeout"` // seconds
}

// MongoConfig contains persistence configuration
type MongoConfig struct {
	URI            string `yaml:"uri"`
	Database       string `yaml:"database"`
	ConnectTimeout int    `yaml:"connect_timeout"` // seconds
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file. Secrets and connection
// strings can be supplied through the environment instead of the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config.applyEnvOverrides()
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// applyEnvOverrides lets the environment supply secrets so they stay out of
// the config file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SPEECHMATICS_API_KEY"); v != "" {
		c.Transcription.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Summarizer.APIKey = v
	}
	if v := os.Getenv("MONGO_URI"); v != "" {
		c.Mongo.URI = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.BindAddress == "" {
		c.Server.BindAddress = "0.0.0.0"
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30
	}
	if c.Frame.HeaderLen == 0 {
		c.Frame.HeaderLen = 5
	}
	if c.Session.CloseTimeout == 0 {
		c.Session.CloseTimeout = 15
	}
	if c.Session.SummarizeTimeout == 0 {
		c.Session.SummarizeTimeout = 90
	}
	if c.Transcription.URL == "" {
		c.Transcription.URL = "wss://eu2.rt.speechmatics.com/v2"
	}
	if c.Transcription.Language == "" {
		c.Transcription.Language = "en"
	}
	if c.Transcription.SampleRate == 0 {
		c.Transcription.SampleRate = 16000
	}
	if c.Transcription.ConnectTimeout == 0 {
		c.Transcription.ConnectTimeout = 10
	}
	if c.Summarizer.Model == "" {
		c.Summarizer.Model = "gpt-4o-mini"
	}
	if c.Summarizer.Temperature == 0 {
		c.Summarizer.Temperature = 0.3
	}
	if c.Summarizer.Timeout == 0 {
		c.Summarizer.Timeout = 60
	}
	if c.Mongo.URI == "" {
		c.Mongo.URI = "mongodb://localhost:27017"
	}
	if c.Mongo.Database == "" {
		c.Mongo.Database = "meetingmind"
	}
	if c.Mongo.ConnectTimeout == 0 {
		c.Mongo.ConnectTimeout = 10
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Frame.Validate(); err != nil {
		return fmt.Errorf("frame config: %w", err)
	}

	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Summarizer.Validate(); err != nil {
		return fmt.Errorf("summarizer config: %w", err)
	}

	if err := c.Mongo.Validate(); err != nil {
		return fmt.Errorf("mongo config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	if s.ShutdownTimeout < 1 {
		return fmt.Errorf("shutdown_timeout must be at least 1 second, got %d", s.ShutdownTimeout)
	}

	return nil
}

// Validate validates frame configuration
func (f *FrameConfig) Validate() error {
	if f.HeaderLen < 0 {
		return fmt.Errorf("header_len cannot be negative, got %d", f.HeaderLen)
	}

	return nil
}

// Validate validates session configuration
func (s *SessionConfig) Validate() error {
	if s.CloseTimeout < 1 {
		return fmt.Errorf("close_timeout must be at least 1 second, got %d", s.CloseTimeout)
	}

	if s.SummarizeTimeout < 1 {
		return fmt.Errorf("summarize_timeout must be at least 1 second, got %d", s.SummarizeTimeout)
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	if t.URL == "" {
		return fmt.Errorf("url cannot be empty")
	}

	if t.APIKey == "" {
		return fmt.Errorf("api_key cannot be empty")
	}

	if t.SampleRate < 8000 {
		return fmt.Errorf("sample_rate must be at least 8000 Hz, got %d", t.SampleRate)
	}

	if t.ConnectTimeout < 1 {
		return fmt.Errorf("connect_timeout must be at least 1 second, got %d", t.ConnectTimeout)
	}

	return nil
}

// Validate validates summarizer configuration
func (s *SummarizerConfig) Validate() error {
	if s.APIKey == "" {
		return fmt.Errorf("api_key cannot be empty")
	}

	if s.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}

	if s.Temperature < 0 || s.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", s.Temperature)
	}

	if s.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", s.Timeout)
	}

	return nil
}

// Validate validates mongo configuration
func (m *MongoConfig) Validate() error {
	if m.URI == "" {
		return fmt.Errorf("uri cannot be empty")
	}

	if m.Database == "" {
		return fmt.Errorf("database cannot be empty")
	}

	if m.ConnectTimeout < 1 {
		return fmt.Errorf("connect_timeout must be at least 1 second, got %d", m.ConnectTimeout)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// Addr returns the listen address in host:port form
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.BindAddress, s.Port)
}

// GetShutdownTimeoutDuration returns the shutdown timeout as a time.Duration
func (s *ServerConfig) GetShutdownTimeoutDuration() time.Duration {
	return time.Duration(s.ShutdownTimeout) * time.Second
}

// GetCloseTimeoutDuration returns the close timeout as a time.Duration
func (s *SessionConfig) GetCloseTimeoutDuration() time.Duration {
	return time.Duration(s.CloseTimeout) * time.Second
}

// GetSummarizeTimeoutDuration returns the summarize timeout as a time.Duration
func (s *SessionConfig) GetSummarizeTimeoutDuration() time.Duration {
	return time.Duration(s.SummarizeTimeout) * time.Second
}

// GetConnectTimeoutDuration returns the connect timeout as a time.Duration
func (t *TranscriptionConfig) GetConnectTimeoutDuration() time.Duration {
	return time.Duration(t.ConnectTimeout) * time.Second
}

// GetTimeoutDuration returns the summarizer timeout as a time.Duration
func (s *SummarizerConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}

// GetConnectTimeoutDuration returns the connect timeout as a time.Duration
func (m *MongoConfig) GetConnectTimeoutDuration() time.Duration {
	return time.Duration(m.ConnectTimeout) * time.Second
}
