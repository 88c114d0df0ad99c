package config

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/danmuck/amulectl/internal/logging"
)

// File is the on-disk amulectl configuration.
type File struct {
	Address           string  `toml:"address" comment:"amuled EC endpoint, host:port"`
	Password          string  `toml:"password" comment:"EC password; AMULECTL_PASSWORD overrides"`
	ClientName        string  `toml:"client_name"`
	ClientVersion     string  `toml:"client_version"`
	ConnectTimeout    string  `toml:"connect_timeout"`
	WriteTimeout      string  `toml:"write_timeout"`
	ReconnectAttempts int     `toml:"reconnect_attempts"`
	ReconnectDelay    string  `toml:"reconnect_delay"`
	MaxPayloadBytes   uint32  `toml:"max_payload_bytes"`
	TLS               TLSFile `toml:"tls" comment:"only for daemons behind a TLS terminator"`
	Log               LogFile `toml:"log"`
}

type TLSFile struct {
	Enabled            bool   `toml:"enabled"`
	CAFile             string `toml:"ca_file"`
	CertFile           string `toml:"cert_file"`
	KeyFile            string `toml:"key_file"`
	ServerName         string `toml:"server_name"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
}

type LogFile struct {
	Level string `toml:"level"`
	JSON  bool   `toml:"json"`
}

var ErrUnknownKey = errors.New("config: unknown key")

// Load strictly decodes path: unknown keys are errors.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	var cfg File
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return File{}, fmt.Errorf("%w (%s): %s", ErrUnknownKey, path, strict.String())
		}
		return File{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return File{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

func Validate(cfg File) error {
	if strings.TrimSpace(cfg.Address) == "" {
		return fmt.Errorf("address is required")
	}
	if _, _, err := net.SplitHostPort(cfg.Address); err != nil {
		return fmt.Errorf("address %q: %w", cfg.Address, err)
	}
	for key, raw := range map[string]string{
		"connect_timeout": cfg.ConnectTimeout,
		"write_timeout":   cfg.WriteTimeout,
		"reconnect_delay": cfg.ReconnectDelay,
	} {
		if _, err := parseDuration(raw); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	if cfg.ReconnectAttempts < 0 {
		return fmt.Errorf("reconnect_attempts must be >= 0")
	}
	if cfg.Log.Level != "" {
		if _, ok := logging.ParseLevel(cfg.Log.Level); !ok {
			return fmt.Errorf("log.level: unknown level %q", cfg.Log.Level)
		}
	}
	sc, err := cfg.SessionConfig()
	if err != nil {
		return err
	}
	return sc.ValidateClientTransport()
}

// parseDuration accepts an empty string as "use the default".
func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", raw)
	}
	return d, nil
}
