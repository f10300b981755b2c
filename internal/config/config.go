// Package config holds the session's connection options: a flat Options
// struct validated through go-playground/validator struct tags, with
// defaulting and clamping applied before a Session sees it.
package config

import (
	"fmt"
	"time"
)

const (
	// DefaultLoginDeadline is the fixed time allowed for the Authenticating
	// state before LoginTimeout.
	DefaultLoginDeadline = 5 * time.Second

	// DefaultIdleLimit is the watchdog timeout when Options.IdleLimit is
	// left at zero.
	DefaultIdleLimit = 10 * time.Second

	// DefaultPlayerUpdateInterval is the roster poll period when
	// Options.PlayerUpdateInterval is left at zero.
	DefaultPlayerUpdateInterval = 5 * time.Second

	// DefaultDialTimeout bounds the initial UDP association attempt.
	DefaultDialTimeout = 5 * time.Second

	// MinPlayerUpdateInterval and MaxPlayerUpdateInterval clamp the
	// configured roster poll period.
	MinPlayerUpdateInterval = 1000 * time.Millisecond
	MaxPlayerUpdateInterval = 40000 * time.Millisecond
)

// Options configures a session.
type Options struct {
	Host     string `validate:"required,hostname|ip"`
	Port     uint16 `validate:"required"`
	Password string `validate:"required"`

	AutoReconnect bool

	// PlayerUpdateInterval is the roster poll period; zero adopts
	// DefaultPlayerUpdateInterval before being clamped to
	// [MinPlayerUpdateInterval, MaxPlayerUpdateInterval] in Normalize.
	PlayerUpdateInterval time.Duration `validate:"gte=0"`

	// IdleLimit is the watchdog timeout; zero adopts DefaultIdleLimit.
	IdleLimit time.Duration `validate:"gte=0"`

	// DialTimeout bounds the UDP association attempt; zero adopts
	// DefaultDialTimeout.
	DialTimeout time.Duration `validate:"gte=0"`
}

// DefaultOptions returns Options with every optional field at its default;
// Host/Port/Password must still be set by the caller.
func DefaultOptions() Options {
	return Options{
		AutoReconnect:        true,
		PlayerUpdateInterval: DefaultPlayerUpdateInterval,
		IdleLimit:            DefaultIdleLimit,
		DialTimeout:          DefaultDialTimeout,
	}
}

// Normalize fills in defaults and clamps bounded fields. Call after
// Validate succeeds.
func (o Options) Normalize() Options {
	if o.PlayerUpdateInterval <= 0 {
		o.PlayerUpdateInterval = DefaultPlayerUpdateInterval
	}
	if o.PlayerUpdateInterval < MinPlayerUpdateInterval {
		o.PlayerUpdateInterval = MinPlayerUpdateInterval
	}
	if o.PlayerUpdateInterval > MaxPlayerUpdateInterval {
		o.PlayerUpdateInterval = MaxPlayerUpdateInterval
	}
	if o.IdleLimit <= 0 {
		o.IdleLimit = DefaultIdleLimit
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = DefaultDialTimeout
	}
	return o
}

// Address formats the host:port dial target.
func (o Options) Address() string {
	return fmt.Sprintf("%s:%d", o.Host, o.Port)
}

// DefaultLogMaxAge bounds how long per-run log files are kept on disk.
const DefaultLogMaxAge = 7 * 24 * time.Hour

// LogOptions configures the agent's log output. An empty Directory
// disables file output.
type LogOptions struct {
	Level     string
	Directory string
	Console   bool
	MaxAge    time.Duration
}

// DefaultLogOptions returns file-plus-console logging at info level.
func DefaultLogOptions() LogOptions {
	return LogOptions{
		Level:     "info",
		Directory: "logs",
		Console:   true,
		MaxAge:    DefaultLogMaxAge,
	}
}

// MQTTOptions configures the optional telemetry sink. Zero value
// means telemetry is disabled.
type MQTTOptions struct {
	Enabled   bool
	BrokerURL string `validate:"required_if=Enabled true"`
	Port      int
	ClientID  string
	UseTLS    bool
	CertFile  string
	KeyFile   string
}

// APIOptions configures the optional introspection API. Zero value
// means the API is disabled.
type APIOptions struct {
	Enabled        bool
	ListenAddress  string
	AllowedOrigins []string
}
