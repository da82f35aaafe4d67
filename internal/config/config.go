// ABOUTME: Configuration loading and parsing for asf-auth
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/2389/asf-auth/internal/token"
)

// Config represents the complete asf-auth configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	SMTP     SMTPConfig     `yaml:"smtp"`
	Logging  LoggingConfig  `yaml:"logging"`
	Sweep    SweepConfig    `yaml:"sweep"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`

	// Login rate limiting per client address
	LoginRatePerSecond float64 `yaml:"login_rate_per_second"`
	LoginBurst         int     `yaml:"login_burst"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds the auth engine configuration
type AuthConfig struct {
	// JWTSecret signs session tokens. Minimum 32 bytes.
	JWTSecret string `yaml:"jwt_secret"`

	// Provider selects the authenticator: "local" (credential store) or
	// "external" (hosted identity provider / demo)
	Provider string `yaml:"provider"`

	BcryptCost        int  `yaml:"bcrypt_cost"`
	MinPasswordLength int  `yaml:"min_password_length"`
	MaxLoginAttempts  int  `yaml:"max_login_attempts"`

	// RequireVerifiedEmail blocks login for unverified accounts when set
	RequireVerifiedEmail bool `yaml:"require_verified_email"`

	LockoutDuration time.Duration `yaml:"-"`
	SessionTTL      time.Duration `yaml:"-"`
	VerificationTTL time.Duration `yaml:"-"`
	ResetTTL        time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	LockoutDurationRaw string `yaml:"lockout_duration"`
	SessionTTLRaw      string `yaml:"session_ttl"`
	VerificationTTLRaw string `yaml:"verification_ttl"`
	ResetTTLRaw        string `yaml:"reset_ttl"`
}

// SMTPConfig holds the outbound mail configuration. When Host or User is
// empty, mail falls back to log-only delivery.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	AppName  string `yaml:"app_name"`
	BaseURL  string `yaml:"base_url"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SweepConfig holds the expired-row housekeeping configuration
type SweepConfig struct {
	Interval time.Duration `yaml:"-"`

	IntervalRaw string `yaml:"interval"`
}

// Defaults applied where the file leaves values unset.
const (
	DefaultMaxLoginAttempts = 5
	DefaultLockoutDuration  = 30 * time.Minute
	DefaultSessionTTL       = time.Hour
	DefaultVerificationTTL  = 24 * time.Hour
	DefaultResetTTL         = time.Hour
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in unset fields with production defaults.
func (c *Config) applyDefaults() {
	if c.Auth.Provider == "" {
		c.Auth.Provider = "local"
	}
	if c.Auth.MaxLoginAttempts == 0 {
		c.Auth.MaxLoginAttempts = DefaultMaxLoginAttempts
	}
	if c.Auth.LockoutDuration == 0 {
		c.Auth.LockoutDuration = DefaultLockoutDuration
	}
	if c.Auth.SessionTTL == 0 {
		c.Auth.SessionTTL = DefaultSessionTTL
	}
	if c.Auth.VerificationTTL == 0 {
		c.Auth.VerificationTTL = DefaultVerificationTTL
	}
	if c.Auth.ResetTTL == 0 {
		c.Auth.ResetTTL = DefaultResetTTL
	}
	if c.Server.LoginRatePerSecond == 0 {
		c.Server.LoginRatePerSecond = 1
	}
	if c.Server.LoginBurst == 0 {
		c.Server.LoginBurst = 5
	}
	if c.SMTP.AppName == "" {
		c.SMTP.AppName = "ASF-Engine"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if len(c.Auth.JWTSecret) < token.MinSecretLength {
		return fmt.Errorf("auth.jwt_secret must be at least %d bytes", token.MinSecretLength)
	}

	switch c.Auth.Provider {
	case "local", "external":
	default:
		return fmt.Errorf("auth.provider must be \"local\" or \"external\", got %q", c.Auth.Provider)
	}

	if c.Auth.MaxLoginAttempts < 1 {
		return fmt.Errorf("auth.max_login_attempts must be positive")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Auth.LockoutDurationRaw != "" {
		cfg.Auth.LockoutDuration, err = time.ParseDuration(cfg.Auth.LockoutDurationRaw)
		if err != nil {
			return fmt.Errorf("parsing lockout_duration %q: %w", cfg.Auth.LockoutDurationRaw, err)
		}
	}

	if cfg.Auth.SessionTTLRaw != "" {
		cfg.Auth.SessionTTL, err = time.ParseDuration(cfg.Auth.SessionTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing session_ttl %q: %w", cfg.Auth.SessionTTLRaw, err)
		}
	}

	if cfg.Auth.VerificationTTLRaw != "" {
		cfg.Auth.VerificationTTL, err = time.ParseDuration(cfg.Auth.VerificationTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing verification_ttl %q: %w", cfg.Auth.VerificationTTLRaw, err)
		}
	}

	if cfg.Auth.ResetTTLRaw != "" {
		cfg.Auth.ResetTTL, err = time.ParseDuration(cfg.Auth.ResetTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing reset_ttl %q: %w", cfg.Auth.ResetTTLRaw, err)
		}
	}

	if cfg.Sweep.IntervalRaw != "" {
		cfg.Sweep.Interval, err = time.ParseDuration(cfg.Sweep.IntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing sweep interval %q: %w", cfg.Sweep.IntervalRaw, err)
		}
	}

	return nil
}
