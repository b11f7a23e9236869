// Package config defines the relay's runtime configuration and loads it
// from defaults, an optional config file, CHATRELAY_* environment variables
// and command-line flags, in increasing order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/andy6609/chat-relay/internal/chat"
)

// Config holds every tuneable of the relay process.
type Config struct {
	Listen          string `mapstructure:"listen"`
	WebSocketListen string `mapstructure:"websocket_listen"`
	MetricsListen   string `mapstructure:"metrics_listen"`

	Database   string `mapstructure:"database"`
	BcryptCost int    `mapstructure:"bcrypt_cost"`

	OutboundBuffer        int           `mapstructure:"outbound_buffer"`
	MaxMessageLength      int           `mapstructure:"max_message_length"`
	WriteTimeout          time.Duration `mapstructure:"write_timeout"`
	DrainTimeout          time.Duration `mapstructure:"drain_timeout"`
	ExcludeSelfFromOnline bool          `mapstructure:"exclude_self_from_online"`

	Log LogConfig `mapstructure:"log"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// FieldError reports an invalid configuration value.
type FieldError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *FieldError) Error() string {
	msg := "config: " + e.Field
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	return msg + ": " + e.Message
}

// EnvPrefix namespaces environment overrides, e.g. CHATRELAY_LOG_LEVEL.
const EnvPrefix = "CHATRELAY"

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":5555")
	v.SetDefault("websocket_listen", "")
	v.SetDefault("metrics_listen", ":9090")
	v.SetDefault("database", "chat.db")
	v.SetDefault("bcrypt_cost", bcrypt.DefaultCost)
	v.SetDefault("outbound_buffer", 64)
	v.SetDefault("max_message_length", 512)
	v.SetDefault("write_timeout", 10*time.Second)
	v.SetDefault("drain_timeout", 2*time.Second)
	v.SetDefault("exclude_self_from_online", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// NewViper returns a viper instance with defaults and environment binding
// applied. A non-empty cfgFile is read and must exist.
func NewViper(cfgFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", cfgFile, err)
		}
	}
	return v, nil
}

// Load decodes v into a Config and validates it.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that every value is usable.
func (c Config) Validate() error {
	if c.Listen == "" {
		return &FieldError{Field: "listen", Message: "listen address is required"}
	}
	if c.Database == "" {
		return &FieldError{Field: "database", Message: "database path is required"}
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return &FieldError{Field: "bcrypt_cost", Value: c.BcryptCost,
			Message: fmt.Sprintf("must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)}
	}
	if c.OutboundBuffer <= 0 {
		return &FieldError{Field: "outbound_buffer", Value: c.OutboundBuffer, Message: "must be positive"}
	}
	if c.MaxMessageLength <= 0 {
		return &FieldError{Field: "max_message_length", Value: c.MaxMessageLength, Message: "must be positive"}
	}
	if c.WriteTimeout <= 0 {
		return &FieldError{Field: "write_timeout", Value: c.WriteTimeout, Message: "must be positive"}
	}
	if c.DrainTimeout <= 0 {
		return &FieldError{Field: "drain_timeout", Value: c.DrainTimeout, Message: "must be positive"}
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return &FieldError{Field: "log.format", Value: c.Log.Format, Message: "must be json or text"}
	}
	return nil
}

// ServerOptions maps the config onto chat.Options.
func (c Config) ServerOptions() chat.Options {
	return chat.Options{
		Addr:                  c.Listen,
		WebSocketAddr:         c.WebSocketListen,
		OutboundBuffer:        c.OutboundBuffer,
		MaxMessageLength:      c.MaxMessageLength,
		WriteTimeout:          c.WriteTimeout,
		DrainTimeout:          c.DrainTimeout,
		ExcludeSelfFromOnline: c.ExcludeSelfFromOnline,
	}
}
