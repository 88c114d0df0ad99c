package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/amulectl/internal/testutil/testlog"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "amulectl.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestTemplateRoundTripsThroughLoad(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "amulectl.toml")
	if err := WriteTemplate(path, false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load template: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("template drifted from defaults:\n got %+v\nwant %+v", cfg, Default())
	}
	if err := WriteTemplate(path, false); err == nil {
		t.Fatalf("expected refusal to overwrite")
	}
	if err := WriteTemplate(path, true); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	testlog.Start(t)
	path := writeFile(t, "address = \"127.0.0.1:4712\"\npasword = \"typo\"\n")
	if _, err := Load(path); !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("expected ErrUnknownKey, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	testlog.Start(t)
	tests := []struct {
		name    string
		mutate  func(*File)
		wantErr string
	}{
		{"defaults", func(*File) {}, ""},
		{"missing address", func(f *File) { f.Address = "" }, "address is required"},
		{"no port", func(f *File) { f.Address = "localhost" }, "address"},
		{"bad duration", func(f *File) { f.ConnectTimeout = "soon" }, "connect_timeout"},
		{"negative delay", func(f *File) { f.ReconnectDelay = "-1s" }, "reconnect_delay"},
		{"bad level", func(f *File) { f.Log.Level = "loud" }, "log.level"},
		{"tls without ca", func(f *File) { f.TLS.Enabled = true }, "ca file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestSessionConfigOverlaysDefaults(t *testing.T) {
	testlog.Start(t)
	f := File{
		Address:           "10.0.0.2:4712",
		ReconnectAttempts: 2,
		ReconnectDelay:    "250ms",
		TLS:               TLSFile{Enabled: true, InsecureSkipVerify: true},
	}
	cfg, err := f.SessionConfig()
	if err != nil {
		t.Fatalf("session config: %v", err)
	}
	if cfg.Address != "10.0.0.2:4712" || cfg.ReconnectAttempts != 2 {
		t.Fatalf("overrides lost: %+v", cfg)
	}
	if cfg.Backoff.InitialDelay != 250*time.Millisecond || cfg.Backoff.Multiplier != 1.0 {
		t.Fatalf("backoff=%+v", cfg.Backoff)
	}
	if cfg.ConnectTimeout != 5*time.Second || cfg.ClientName != "amulectl" {
		t.Fatalf("defaults lost: %+v", cfg)
	}
	if !cfg.TLS.Enabled || !cfg.TLS.InsecureSkipVerify {
		t.Fatalf("tls=%+v", cfg.TLS)
	}
}
