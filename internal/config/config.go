package config

import (
	"net/url"
	"time"

	"github.com/HMasataka/dashsync/internal/logging"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig   `json:"server" yaml:"server" envconfig:"server"`
	Hub     HubConfig      `json:"hub" yaml:"hub" envconfig:"hub"`
	Client  ClientConfig   `json:"client" yaml:"client" envconfig:"client"`
	Logging logging.Config `json:"logging" yaml:"logging" envconfig:"log"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host string `json:"host" yaml:"host" envconfig:"host"`
	Port int    `json:"port" yaml:"port" envconfig:"port"`
	// AllowedOrigin is the single browser origin permitted to open the channel
	AllowedOrigin string        `json:"allowed_origin" yaml:"allowed_origin" envconfig:"allowed_origin"`
	Path          string        `json:"path" yaml:"path" envconfig:"path"`
	ReadTimeout   time.Duration `json:"read_timeout" yaml:"read_timeout" envconfig:"read_timeout"`
	WriteTimeout  time.Duration `json:"write_timeout" yaml:"write_timeout" envconfig:"write_timeout"`
	IdleTimeout   time.Duration `json:"idle_timeout" yaml:"idle_timeout" envconfig:"idle_timeout"`
}

// HubConfig tunes the broadcast hub and its per-connection pumps
type HubConfig struct {
	QueueSize      int           `json:"queue_size" yaml:"queue_size" envconfig:"queue_size"`
	SendBuffer     int           `json:"send_buffer" yaml:"send_buffer" envconfig:"send_buffer"`
	PingInterval   time.Duration `json:"ping_interval" yaml:"ping_interval" envconfig:"ping_interval"`
	ReadTimeout    time.Duration `json:"read_timeout" yaml:"read_timeout" envconfig:"read_timeout"`
	WriteTimeout   time.Duration `json:"write_timeout" yaml:"write_timeout" envconfig:"write_timeout"`
	MaxMessageSize int64         `json:"max_message_size" yaml:"max_message_size" envconfig:"max_message_size"`
}

// ClientConfig configures the sync client used by the tab command
type ClientConfig struct {
	URL         string        `json:"url" yaml:"url" envconfig:"url"`
	SendBuffer  int           `json:"send_buffer" yaml:"send_buffer" envconfig:"send_buffer"`
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout" envconfig:"read_timeout"`
	Reconnect   bool          `json:"reconnect" yaml:"reconnect" envconfig:"reconnect"`
	Retry       RetryConfig   `json:"retry" yaml:"retry" envconfig:"retry"`
}

// RetryConfig is the reconnect backoff
type RetryConfig struct {
	Min    time.Duration `json:"min" yaml:"min" envconfig:"min"`
	Max    time.Duration `json:"max" yaml:"max" envconfig:"max"`
	Factor float64       `json:"factor" yaml:"factor" envconfig:"factor"`
	Jitter bool          `json:"jitter" yaml:"jitter" envconfig:"jitter"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:          "localhost",
			Port:          3000,
			AllowedOrigin: "http://localhost:5173",
			Path:          "/ws",
			ReadTimeout:   30 * time.Second,
			WriteTimeout:  30 * time.Second,
			IdleTimeout:   120 * time.Second,
		},
		Hub: HubConfig{
			QueueSize:      256,
			SendBuffer:     256,
			PingInterval:   54 * time.Second,
			ReadTimeout:    60 * time.Second,
			WriteTimeout:   10 * time.Second,
			MaxMessageSize: 512 * 1024,
		},
		Client: ClientConfig{
			URL:         "ws://localhost:3000/ws",
			SendBuffer:  64,
			ReadTimeout: 60 * time.Second,
			Reconnect:   true,
			Retry: RetryConfig{
				Min:    500 * time.Millisecond,
				Max:    10 * time.Second,
				Factor: 2,
				Jitter: true,
			},
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return NewConfigError("server.port", "invalid port number")
	}

	if c.Server.ReadTimeout < 0 {
		return NewConfigError("server.read_timeout", "timeout cannot be negative")
	}

	if c.Server.WriteTimeout < 0 {
		return NewConfigError("server.write_timeout", "timeout cannot be negative")
	}

	if c.Server.Path == "" || c.Server.Path[0] != '/' {
		return NewConfigError("server.path", "path must start with /")
	}

	if c.Server.AllowedOrigin != "" {
		u, err := url.Parse(c.Server.AllowedOrigin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return NewConfigError("server.allowed_origin", "origin must be scheme://host[:port]")
		}
	}

	if c.Hub.QueueSize < 0 || c.Hub.SendBuffer <= 0 {
		return NewConfigError("hub.send_buffer", "buffer sizes must be positive")
	}

	if c.Hub.PingInterval <= 0 || c.Hub.ReadTimeout <= c.Hub.PingInterval {
		return NewConfigError("hub.read_timeout", "read timeout must exceed ping interval")
	}

	if c.Hub.MaxMessageSize <= 0 {
		return NewConfigError("hub.max_message_size", "must be positive")
	}

	u, err := url.Parse(c.Client.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return NewConfigError("client.url", "url must use ws or wss")
	}

	if c.Client.ReadTimeout <= c.Hub.PingInterval {
		return NewConfigError("client.read_timeout", "must be longer than hub.ping_interval")
	}

	if c.Client.Retry.Min <= 0 || c.Client.Retry.Max < c.Client.Retry.Min {
		return NewConfigError("client.retry", "min must be positive and not exceed max")
	}

	return nil
}
