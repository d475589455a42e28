package config

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func load(t *testing.T, args ...string) (Config, error) {
	t.Helper()
	cmd := &cobra.Command{Use: "msg-to-imap"}
	if err := RegisterFlags(cmd); err != nil {
		t.Fatalf("RegisterFlags() error = %v", err)
	}
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}
	return LoadConfig(cmd)
}

func TestLoadConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("IMAP_PASS", "")

	tests := []struct {
		name    string
		args    []string
		env     string
		wantErr string
		check   func(t *testing.T, cfg Config)
	}{
		{
			name: "imap with env password",
			args: []string{"--input", "mail", "--imap-host", "imap.example.org", "--imap-user", "bob"},
			env:  "secret",
			check: func(t *testing.T, cfg Config) {
				if !cfg.UseIMAP() || cfg.IMAPPass != "secret" || cfg.IMAPPort != 993 {
					t.Errorf("cfg = %+v", cfg)
				}
				if cfg.StateDir != filepath.Join(home, ".msg-to-imap", "state") {
					t.Errorf("StateDir = %q", cfg.StateDir)
				}
				if cfg.CodePage != 1252 || cfg.MaxDepth != 8 || !cfg.Progress || cfg.FailFast {
					t.Errorf("defaults = %d %d %v", cfg.CodePage, cfg.MaxDepth, cfg.Progress)
				}
			},
		},
		{
			name: "mbox output needs no imap flags",
			args: []string{"--input", "mail", "--mbox-out", "out.mbox", "--state-backend", "SQLite", "--log-level", "WARNING"},
			check: func(t *testing.T, cfg Config) {
				if cfg.UseIMAP() || cfg.StateBackend != "sqlite" || cfg.LogLevel != "warn" {
					t.Errorf("cfg = %+v", cfg)
				}
			},
		},
		{
			name: "dry run tolerates missing password",
			args: []string{"--input", "mail", "--imap-host", "h", "--imap-user", "u", "--dry-run"},
		},
		{
			name:    "missing password",
			args:    []string{"--input", "mail", "--imap-host", "h", "--imap-user", "u"},
			wantErr: "IMAP password",
		},
		{
			name:    "missing host",
			args:    []string{"--input", "mail"},
			wantErr: "--imap-host",
		},
		{
			name:    "filter conflict",
			args:    []string{"--input", "mail", "--mbox-out", "o", "--include-body", "a", "--exclude-header", "b"},
			wantErr: "mutually exclusive",
		},
		{
			name:    "bad backend",
			args:    []string{"--input", "mail", "--mbox-out", "o", "--state-backend", "redis"},
			wantErr: "--state-backend",
		},
		{
			name:    "bad code page",
			args:    []string{"--input", "mail", "--mbox-out", "o", "--code-page", "0"},
			wantErr: "--code-page",
		},
		{
			name:    "unknown code page",
			args:    []string{"--input", "mail", "--mbox-out", "o", "--code-page", "12345"},
			wantErr: "unknown code page",
		},
		{
			name: "known code page and fail fast",
			args: []string{"--input", "mail", "--mbox-out", "o", "--code-page", "932", "--fail-fast"},
			check: func(t *testing.T, cfg Config) {
				if cfg.CodePage != 932 || !cfg.FailFast {
					t.Errorf("CodePage, FailFast = %d, %v", cfg.CodePage, cfg.FailFast)
				}
			},
		},
		{
			name:    "bad log level",
			args:    []string{"--input", "mail", "--mbox-out", "o", "--log-level", "trace"},
			wantErr: "--log-level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("IMAP_PASS", tt.env)
			cfg, err := load(t, tt.args...)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("LoadConfig() error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadConfig() error = %v", err)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}
