package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/amulectl/internal/config"
	"github.com/danmuck/amulectl/internal/protocol/session"
)

const (
	envPassword = "AMULECTL_PASSWORD"
	envAddress  = "AMULECTL_ADDRESS"
)

type cliConfig struct {
	Session  session.Config
	Password string
	Log      config.LogFile
}

// loadCLIConfig overlays the keys defined in path onto the defaults, then
// applies env overrides. An empty path means defaults plus env.
func loadCLIConfig(path string) (cliConfig, error) {
	file := config.Default()
	if strings.TrimSpace(path) != "" {
		var raw config.File
		meta, err := toml.DecodeFile(path, &raw)
		if err != nil {
			return cliConfig{}, fmt.Errorf("load amulectl config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			sort.Strings(keys)
			return cliConfig{}, fmt.Errorf("load amulectl config: unknown keys %s", strings.Join(keys, ", "))
		}
		overlay(&file, raw, meta)
	}

	if v := strings.TrimSpace(os.Getenv(envAddress)); v != "" {
		file.Address = v
	}
	if v := os.Getenv(envPassword); v != "" {
		file.Password = v
	}

	sc, err := file.SessionConfig()
	if err != nil {
		return cliConfig{}, fmt.Errorf("load amulectl config: %w", err)
	}
	return cliConfig{Session: sc, Password: file.Password, Log: file.Log}, nil
}

func overlay(dst *config.File, raw config.File, meta toml.MetaData) {
	if meta.IsDefined("address") {
		dst.Address = strings.TrimSpace(raw.Address)
	}
	if meta.IsDefined("password") {
		dst.Password = raw.Password
	}
	if meta.IsDefined("client_name") {
		dst.ClientName = strings.TrimSpace(raw.ClientName)
	}
	if meta.IsDefined("client_version") {
		dst.ClientVersion = strings.TrimSpace(raw.ClientVersion)
	}
	if meta.IsDefined("connect_timeout") {
		dst.ConnectTimeout = raw.ConnectTimeout
	}
	if meta.IsDefined("write_timeout") {
		dst.WriteTimeout = raw.WriteTimeout
	}
	if meta.IsDefined("reconnect_attempts") {
		dst.ReconnectAttempts = raw.ReconnectAttempts
	}
	if meta.IsDefined("reconnect_delay") {
		dst.ReconnectDelay = raw.ReconnectDelay
	}
	if meta.IsDefined("max_payload_bytes") {
		dst.MaxPayloadBytes = raw.MaxPayloadBytes
	}
	if meta.IsDefined("tls") {
		dst.TLS = raw.TLS
	}
	if meta.IsDefined("log", "level") {
		dst.Log.Level = raw.Log.Level
	}
	if meta.IsDefined("log", "json") {
		dst.Log.JSON = raw.Log.JSON
	}
}
