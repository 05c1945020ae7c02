// Package config provides configuration loading for openclaw.
//
// Configuration is read from an optional YAML file and then overridden by
// OPENCLAW_* environment variables (see Load).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds the complete openclaw configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Gateway   GatewayConfig   `koanf:"gateway"`
	Telegram  TelegramConfig  `koanf:"telegram"`
	Workflow  WorkflowConfig  `koanf:"workflow"`
	Events    EventsConfig    `koanf:"events"`
	Profiles  ProfilesConfig  `koanf:"profiles"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Scrubber  ScrubberConfig  `koanf:"scrubber"`
}

// ServerConfig holds HTTP API configuration.
type ServerConfig struct {
	Enabled         bool     `koanf:"enabled"`
	Host            string   `koanf:"http_host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// GatewayConfig selects and configures the model provider behind the agent gateway.
type GatewayConfig struct {
	Provider   string   `koanf:"provider"` // gemini | openai
	Model      string   `koanf:"model"`
	APIKey     Secret   `koanf:"api_key"`
	BaseURL    string   `koanf:"base_url"`
	Timeout    Duration `koanf:"timeout"`
	MaxRetries int      `koanf:"max_retries"`
	RateLimit  float64  `koanf:"rate_limit"` // requests per second
	Burst      int      `koanf:"burst"`
}

// TelegramConfig configures the notification channel and the inbound command source.
type TelegramConfig struct {
	Enabled        bool           `koanf:"enabled"`
	BotToken       Secret         `koanf:"bot_token"`
	APIBaseURL     string         `koanf:"api_base_url"`
	ChatID         string         `koanf:"chat_id"`
	GeneralTopicID int            `koanf:"general_topic_id"`
	Topics         map[string]int `koanf:"topics"` // conversation channel -> forum topic
	DefaultUserID  string         `koanf:"default_user_id"`
	PollInterval   Duration       `koanf:"poll_interval"`
	PollTimeout    Duration       `koanf:"poll_timeout"`
	SendRate       float64        `koanf:"send_rate"` // messages per second
}

// WorkflowConfig holds orchestrator tuning.
type WorkflowConfig struct {
	MaxRetries     int          `koanf:"max_retries"`
	IntakeInterval Duration     `koanf:"intake_interval"`
	Pacing         PacingConfig `koanf:"pacing"`
}

// PacingConfig holds the cosmetic delays between workflow steps.
type PacingConfig struct {
	AfterPlan      Duration `koanf:"after_plan"`
	AfterExecute   Duration `koanf:"after_execute"`
	AfterReject    Duration `koanf:"after_reject"`
	AfterRevision  Duration `koanf:"after_revision"`
	BeforeFinalize Duration `koanf:"before_finalize"`
}

// EventsConfig configures the NATS publisher and command subject.
type EventsConfig struct {
	Enabled        bool   `koanf:"enabled"`
	URL            string `koanf:"url"`
	SubjectPrefix  string `koanf:"subject_prefix"`
	CommandSubject string `koanf:"command_subject"`
}

// ProfilesConfig points at an optional role profile override file.
type ProfilesConfig struct {
	Path  string `koanf:"path"`
	Watch bool   `koanf:"watch"`
}

// LoggingConfig holds the subset of logging settings exposed to operators.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig holds the subset of OpenTelemetry settings exposed to operators.
type TelemetryConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	Protocol    string  `koanf:"protocol"` // grpc | http/protobuf
	Insecure    bool    `koanf:"insecure"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// ScrubberConfig controls outbound secret scrubbing.
type ScrubberConfig struct {
	Enabled         bool   `koanf:"enabled"`
	RedactionString string `koanf:"redaction_string"`
}

// Default returns a Config populated with defaults only.
func Default() *Config {
	cfg := &Config{
		Server:    ServerConfig{Enabled: true},
		Scrubber:  ScrubberConfig{Enabled: true},
		Workflow:  WorkflowConfig{Pacing: DefaultPacing()},
		Telemetry: TelemetryConfig{Insecure: true, SampleRate: 1.0},
	}
	applyDefaults(cfg)
	return cfg
}

// DefaultPacing returns the step delays used by the interactive daemon.
func DefaultPacing() PacingConfig {
	return PacingConfig{
		AfterPlan:      Duration(time.Second),
		AfterExecute:   Duration(1500 * time.Millisecond),
		AfterReject:    Duration(1500 * time.Millisecond),
		AfterRevision:  Duration(time.Second),
		BeforeFinalize: Duration(1500 * time.Millisecond),
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Enabled && (c.Server.Port < 1 || c.Server.Port > 65535) {
		return fmt.Errorf("%w: server port %d (must be 1-65535)", ErrInvalidConfig, c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return fmt.Errorf("%w: shutdown timeout must be positive", ErrInvalidConfig)
	}

	switch c.Gateway.Provider {
	case "gemini", "openai":
	default:
		return fmt.Errorf("%w: unknown gateway provider %q", ErrInvalidConfig, c.Gateway.Provider)
	}
	if c.Gateway.Model == "" {
		return fmt.Errorf("%w: gateway model is required", ErrInvalidConfig)
	}
	if c.Gateway.RateLimit < 0 {
		return fmt.Errorf("%w: gateway rate_limit must be >= 0", ErrInvalidConfig)
	}

	if c.Workflow.MaxRetries < 1 {
		return fmt.Errorf("%w: workflow max_retries must be >= 1, got %d", ErrInvalidConfig, c.Workflow.MaxRetries)
	}
	if c.Workflow.IntakeInterval.Duration() <= 0 {
		return fmt.Errorf("%w: workflow intake_interval must be positive", ErrInvalidConfig)
	}

	if c.Telegram.Enabled {
		if !c.Telegram.BotToken.IsSet() {
			return fmt.Errorf("%w: telegram bot_token is required when telegram is enabled", ErrInvalidConfig)
		}
		if strings.TrimSpace(c.Telegram.ChatID) == "" {
			return fmt.Errorf("%w: telegram chat_id is required when telegram is enabled", ErrInvalidConfig)
		}
	}

	if c.Events.Enabled && c.Events.URL == "" {
		return fmt.Errorf("%w: events url is required when events are enabled", ErrInvalidConfig)
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("%w: telemetry sample_rate must be between 0 and 1", ErrInvalidConfig)
	}

	return nil
}
