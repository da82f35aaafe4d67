// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, duration parsing, and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:8080"
  login_rate_per_second: 2
  login_burst: 10

database:
  path: "./test.db"

auth:
  jwt_secret: "0123456789abcdef0123456789abcdef"
  provider: "local"
  bcrypt_cost: 12
  min_password_length: 8
  max_login_attempts: 5
  lockout_duration: "30m"
  session_ttl: "1h"
  verification_ttl: "24h"
  reset_ttl: "1h"
  require_verified_email: true

smtp:
  host: "smtp.example.com"
  port: 587
  user: "noreply@example.com"
  password: "secret"
  from: "noreply@example.com"
  base_url: "https://app.example.com"

logging:
  level: "debug"
  format: "json"

sweep:
  interval: "10m"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8080")
	}
	if cfg.Auth.Provider != "local" {
		t.Errorf("Provider = %q, want %q", cfg.Auth.Provider, "local")
	}
	if cfg.Auth.LockoutDuration != 30*time.Minute {
		t.Errorf("LockoutDuration = %v, want 30m", cfg.Auth.LockoutDuration)
	}
	if cfg.Auth.SessionTTL != time.Hour {
		t.Errorf("SessionTTL = %v, want 1h", cfg.Auth.SessionTTL)
	}
	if cfg.Auth.VerificationTTL != 24*time.Hour {
		t.Errorf("VerificationTTL = %v, want 24h", cfg.Auth.VerificationTTL)
	}
	if !cfg.Auth.RequireVerifiedEmail {
		t.Error("RequireVerifiedEmail should be true")
	}
	if cfg.Sweep.Interval != 10*time.Minute {
		t.Errorf("Sweep.Interval = %v, want 10m", cfg.Sweep.Interval)
	}
	if cfg.SMTP.Host != "smtp.example.com" {
		t.Errorf("SMTP.Host = %q", cfg.SMTP.Host)
	}
}

func TestLoad_Defaults(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "127.0.0.1:8080"

database:
  path: "./test.db"

auth:
  jwt_secret: "0123456789abcdef0123456789abcdef"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Auth.Provider != "local" {
		t.Errorf("default Provider = %q, want local", cfg.Auth.Provider)
	}
	if cfg.Auth.MaxLoginAttempts != DefaultMaxLoginAttempts {
		t.Errorf("default MaxLoginAttempts = %d, want %d", cfg.Auth.MaxLoginAttempts, DefaultMaxLoginAttempts)
	}
	if cfg.Auth.LockoutDuration != DefaultLockoutDuration {
		t.Errorf("default LockoutDuration = %v, want %v", cfg.Auth.LockoutDuration, DefaultLockoutDuration)
	}
	if cfg.Auth.SessionTTL != DefaultSessionTTL {
		t.Errorf("default SessionTTL = %v, want %v", cfg.Auth.SessionTTL, DefaultSessionTTL)
	}
	if cfg.Auth.VerificationTTL != DefaultVerificationTTL {
		t.Errorf("default VerificationTTL = %v, want %v", cfg.Auth.VerificationTTL, DefaultVerificationTTL)
	}
	if cfg.Auth.ResetTTL != DefaultResetTTL {
		t.Errorf("default ResetTTL = %v, want %v", cfg.Auth.ResetTTL, DefaultResetTTL)
	}
	if cfg.Auth.RequireVerifiedEmail {
		t.Error("RequireVerifiedEmail should default to false")
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("ASF_JWT_SECRET", "0123456789abcdef0123456789abcdef")

	configPath := writeConfig(t, `
server:
  http_addr: "127.0.0.1:8080"

database:
  path: "./test.db"

auth:
  jwt_secret: "${ASF_JWT_SECRET}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Auth.JWTSecret != "0123456789abcdef0123456789abcdef" {
		t.Errorf("JWTSecret = %q, env var not expanded", cfg.Auth.JWTSecret)
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing http_addr",
			content: `
database:
  path: "./test.db"
auth:
  jwt_secret: "0123456789abcdef0123456789abcdef"
`,
			wantErr: "http_addr",
		},
		{
			name: "missing database path",
			content: `
server:
  http_addr: "127.0.0.1:8080"
auth:
  jwt_secret: "0123456789abcdef0123456789abcdef"
`,
			wantErr: "database.path",
		},
		{
			name: "short jwt secret",
			content: `
server:
  http_addr: "127.0.0.1:8080"
database:
  path: "./test.db"
auth:
  jwt_secret: "too-short"
`,
			wantErr: "jwt_secret",
		},
		{
			name: "bad provider",
			content: `
server:
  http_addr: "127.0.0.1:8080"
database:
  path: "./test.db"
auth:
  jwt_secret: "0123456789abcdef0123456789abcdef"
  provider: "firebase"
`,
			wantErr: "provider",
		},
		{
			name: "bad duration",
			content: `
server:
  http_addr: "127.0.0.1:8080"
database:
  path: "./test.db"
auth:
  jwt_secret: "0123456789abcdef0123456789abcdef"
  lockout_duration: "thirty minutes"
`,
			wantErr: "lockout_duration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := writeConfig(t, tt.content)
			_, err := Load(configPath)
			if err == nil {
				t.Fatal("Load() should have failed")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("Load() should fail for a missing file")
	}
}
