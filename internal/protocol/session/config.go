package session

import (
	"net"
	"strconv"
	"time"

	"github.com/danmuck/amulectl/internal/protocol/frame"
)

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// TLSConfig is optional transport security for daemons reached through a TLS terminator.
type TLSConfig struct {
	Enabled            bool
	CAFile             string
	CertFile           string
	KeyFile            string
	ServerName         string
	InsecureSkipVerify bool
}

// Config defines transport/session reliability defaults.
type Config struct {
	Address           string
	ConnectTimeout    time.Duration
	WriteTimeout      time.Duration
	ClientName        string
	ClientVersion     string
	ReconnectAttempts int
	Backoff           BackoffConfig
	Limits            frame.Limits
	TLS               TLSConfig
}

const (
	DefaultPort              = 4712
	DefaultReconnectAttempts = 6
	DefaultReconnectDelay    = 10 * time.Second
)

// DefaultConfig returns EC client defaults: six reconnect attempts, fixed 10s apart.
func DefaultConfig() Config {
	return Config{
		Address:           Address("127.0.0.1", DefaultPort),
		ConnectTimeout:    5 * time.Second,
		WriteTimeout:      15 * time.Second,
		ClientName:        "amulectl",
		ClientVersion:     "0.1.0",
		ReconnectAttempts: DefaultReconnectAttempts,
		Backoff: BackoffConfig{
			InitialDelay: DefaultReconnectDelay,
			Multiplier:   1.0,
			Jitter:       false,
		},
		Limits: frame.DefaultLimits(),
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.ClientName == "" {
		c.ClientName = d.ClientName
	}
	if c.ClientVersion == "" {
		c.ClientVersion = d.ClientVersion
	}
	if c.ReconnectAttempts <= 0 {
		c.ReconnectAttempts = d.ReconnectAttempts
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = d.Backoff
	}
	if c.Limits.MaxPayloadBytes == 0 {
		c.Limits = d.Limits
	}
	return c
}

// Address joins host and port into a dial address.
func Address(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
