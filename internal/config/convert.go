package config

import (
	"strings"
	"time"

	"github.com/danmuck/amulectl/internal/protocol/session"
)

// Default mirrors session.DefaultConfig in file form.
func Default() File {
	d := session.DefaultConfig()
	return File{
		Address:           d.Address,
		ClientName:        d.ClientName,
		ClientVersion:     d.ClientVersion,
		ConnectTimeout:    d.ConnectTimeout.String(),
		WriteTimeout:      d.WriteTimeout.String(),
		ReconnectAttempts: d.ReconnectAttempts,
		ReconnectDelay:    d.Backoff.InitialDelay.String(),
		MaxPayloadBytes:   d.Limits.MaxPayloadBytes,
		Log:               LogFile{Level: "info"},
	}
}

// SessionConfig converts the file into session settings. Empty fields keep
// session defaults.
func (f File) SessionConfig() (session.Config, error) {
	cfg := session.DefaultConfig()
	if v := strings.TrimSpace(f.Address); v != "" {
		cfg.Address = v
	}
	if v := strings.TrimSpace(f.ClientName); v != "" {
		cfg.ClientName = v
	}
	if v := strings.TrimSpace(f.ClientVersion); v != "" {
		cfg.ClientVersion = v
	}
	if f.ReconnectAttempts > 0 {
		cfg.ReconnectAttempts = f.ReconnectAttempts
	}
	if f.MaxPayloadBytes > 0 {
		cfg.Limits.MaxPayloadBytes = f.MaxPayloadBytes
	}

	var err error
	if cfg.ConnectTimeout, err = durationOr(f.ConnectTimeout, cfg.ConnectTimeout); err != nil {
		return session.Config{}, err
	}
	if cfg.WriteTimeout, err = durationOr(f.WriteTimeout, cfg.WriteTimeout); err != nil {
		return session.Config{}, err
	}
	if cfg.Backoff.InitialDelay, err = durationOr(f.ReconnectDelay, cfg.Backoff.InitialDelay); err != nil {
		return session.Config{}, err
	}

	cfg.TLS = session.TLSConfig{
		Enabled:            f.TLS.Enabled,
		CAFile:             strings.TrimSpace(f.TLS.CAFile),
		CertFile:           strings.TrimSpace(f.TLS.CertFile),
		KeyFile:            strings.TrimSpace(f.TLS.KeyFile),
		ServerName:         strings.TrimSpace(f.TLS.ServerName),
		InsecureSkipVerify: f.TLS.InsecureSkipVerify,
	}
	return cfg, nil
}

func durationOr(raw string, fallback time.Duration) (time.Duration, error) {
	d, err := parseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return fallback, nil
	}
	return d, nil
}
