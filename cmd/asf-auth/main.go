// ABOUTME: Entry point for the asf-auth authentication server
// ABOUTME: Serves the v1 JSON API and runs session/token housekeeping

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/asf-auth/internal/auth"
	"github.com/2389/asf-auth/internal/config"
	"github.com/2389/asf-auth/internal/httpapi"
	"github.com/2389/asf-auth/internal/mailer"
	"github.com/2389/asf-auth/internal/password"
	"github.com/2389/asf-auth/internal/store"
	"github.com/2389/asf-auth/internal/token"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
            __                  _   _
  __ _ ___ / _|      __ _ _   _| |_| |__
 / _' / __| |_ _____/ _' | | | | __| '_ \
| (_| \__ \  _|____| (_| | |_| | |_| | | |
 \__,_|___/_|       \__,_|\__,_|\__|_| |_|
`

// getConfigPath returns the path to the auth config file.
// Priority: ASF_AUTH_CONFIG env var > XDG_CONFIG_HOME/asf-auth/auth.yaml > ~/.config/asf-auth/auth.yaml
func getConfigPath() string {
	if envPath := os.Getenv("ASF_AUTH_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "auth.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "asf-auth", "auth.yaml")
}

// getDataPath returns the path to the asf-auth data directory.
// Priority: XDG_DATA_HOME/asf-auth > ~/.local/share/asf-auth
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "asf-auth")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: asf-auth <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                       Start the auth server")
		fmt.Println("  init                        Create a new config file interactively")
		fmt.Println("  create-admin --email EMAIL  Create an admin account")
		fmt.Println("  sweep                       Purge expired sessions and tokens once")
		fmt.Println("  health                      Check server health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "create-admin":
		err = runCreateAdmin(ctx)
	case "sweep":
		err = runSweep(ctx)
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("Provider:  ")
	cyan.Print(cfg.Auth.Provider)
	if cfg.Auth.Provider == "external" {
		yellow.Print(" [demo credentials]")
	}
	fmt.Println()
	if cfg.SMTP.Host == "" {
		green.Print("    ▶ ")
		fmt.Print("Mail:      ")
		gray.Println("log only (no SMTP relay configured)")
	}
	fmt.Println()

	logger.Info("starting asf-auth",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"provider", cfg.Auth.Provider,
	)

	engine, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer engine.store.Close()

	mux := http.NewServeMux()
	engine.api.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:         cfg.Server.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	if engine.sweeper != nil {
		go engine.sweeper.Run(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// engine bundles the wired components behind serve, create-admin, and sweep.
type engine struct {
	store   store.Store
	svc     *auth.Service
	api     *httpapi.Server
	sweeper *auth.Sweeper
}

func buildEngine(cfg *config.Config, logger *slog.Logger) (*engine, error) {
	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	hasher := password.NewHasher(cfg.Auth.BcryptCost, cfg.Auth.MinPasswordLength)
	issuer, err := token.NewIssuer([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("creating token issuer: %w", err)
	}

	var authn auth.Authenticator
	switch cfg.Auth.Provider {
	case "external":
		// Demo deployments run against the accept-any provider; a real
		// hosted provider plugs in through the same interface.
		authn = auth.NewExternalAuthenticator(auth.NewAcceptAnyProvider(), st, logger)
	default:
		authn = auth.NewLocalAuthenticator(st, hasher,
			cfg.Auth.MaxLoginAttempts, cfg.Auth.LockoutDuration,
			cfg.Auth.RequireVerifiedEmail, logger)
	}

	svc := auth.NewService(st, hasher, issuer, authn, auth.Config{
		SessionTTL:      cfg.Auth.SessionTTL,
		VerificationTTL: cfg.Auth.VerificationTTL,
		ResetTTL:        cfg.Auth.ResetTTL,
	}, logger)

	var mail mailer.Mailer
	if cfg.SMTP.Host != "" {
		mail = mailer.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port,
			cfg.SMTP.User, cfg.SMTP.Password, cfg.SMTP.From, logger)
	} else {
		mail = mailer.NewLogMailer(logger)
	}

	api := httpapi.New(svc, st, mail, httpapi.Config{
		AppName:            cfg.SMTP.AppName,
		BaseURL:            cfg.SMTP.BaseURL,
		LoginRatePerSecond: cfg.Server.LoginRatePerSecond,
		LoginBurst:         cfg.Server.LoginBurst,
		VerificationTTL:    cfg.Auth.VerificationTTL,
		ResetTTL:           cfg.Auth.ResetTTL,
	}, logger)

	var sweeper *auth.Sweeper
	if cfg.Sweep.Interval > 0 {
		sweeper = auth.NewSweeper(st, cfg.Sweep.Interval, logger)
	}

	return &engine{store: st, svc: svc, api: api, sweeper: sweeper}, nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

// runCreateAdmin creates an admin account directly in the database:
// asf-auth create-admin --email EMAIL [--password PASS] [--name NAME]
// With no --password a random one is generated and printed once.
func runCreateAdmin(ctx context.Context) error {
	var email, pass, name string
	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--email" || arg == "-e":
			if i+1 >= len(args) {
				return fmt.Errorf("--email requires a value")
			}
			email = args[i+1]
			i++
		case strings.HasPrefix(arg, "--email="):
			email = strings.TrimPrefix(arg, "--email=")
		case arg == "--password" || arg == "-p":
			if i+1 >= len(args) {
				return fmt.Errorf("--password requires a value")
			}
			pass = args[i+1]
			i++
		case strings.HasPrefix(arg, "--password="):
			pass = strings.TrimPrefix(arg, "--password=")
		case arg == "--name" || arg == "-n":
			if i+1 >= len(args) {
				return fmt.Errorf("--name requires a value")
			}
			name = args[i+1]
			i++
		case strings.HasPrefix(arg, "--name="):
			name = strings.TrimPrefix(arg, "--name=")
		case strings.HasPrefix(arg, "-"):
			return fmt.Errorf("unknown flag: %s", arg)
		default:
			return fmt.Errorf("unexpected argument: %s", arg)
		}
	}

	if email == "" {
		return fmt.Errorf("--email flag is required")
	}

	generated := false
	if pass == "" {
		passBytes := make([]byte, 12)
		if _, err := rand.Read(passBytes); err != nil {
			return fmt.Errorf("generating password: %w", err)
		}
		pass = base64.RawURLEncoding.EncodeToString(passBytes)
		generated = true
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := setupLogger(config.LoggingConfig{Level: "warn", Format: "text"})

	engine, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer engine.store.Close()

	user, err := engine.svc.Register(ctx, email, pass, name)
	if err != nil {
		return fmt.Errorf("creating account: %w", err)
	}
	if err := engine.store.SetUserRole(ctx, user.ID, store.RoleAdmin); err != nil {
		return fmt.Errorf("granting admin role: %w", err)
	}
	// Operators create admins deliberately; skip the verification dance.
	if err := engine.store.MarkEmailVerified(ctx, user.ID); err != nil {
		return fmt.Errorf("marking email verified: %w", err)
	}

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	green.Println("  Admin account created")
	fmt.Println()
	cyan.Printf("  Email:    ")
	fmt.Println(user.Email)
	cyan.Printf("  ID:       ")
	fmt.Println(user.ID)
	if generated {
		cyan.Printf("  Password: ")
		fmt.Println(pass)
		fmt.Println()
		fmt.Println("  This password is shown once. Store it now.")
	}
	return nil
}

// runSweep purges expired sessions and action tokens once and exits.
// Deployments without a long-running server run this from cron.
func runSweep(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer st.Close()

	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	sessions, err := st.DeleteExpiredSessions(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("sweeping sessions: %w", err)
	}
	tokens, err := st.DeleteExpiredActionTokens(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("sweeping action tokens: %w", err)
	}

	fmt.Printf("purged %d sessions, %d action tokens\n", sessions, tokens)
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("asf-auth configuration setup")
	fmt.Println("============================")
	fmt.Println()

	// Default paths
	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()
	defaultDbPath := filepath.Join(defaultDataPath, "auth.db")

	// Output filename
	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	// Check if file exists
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Server configuration
	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "localhost:8080")

	// Database
	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite database path", defaultDbPath)

	// Auth
	fmt.Println("\n--- Auth Configuration ---")
	provider := prompt(reader, "Provider (local/external)", "local")

	// Generate random JWT secret
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return fmt.Errorf("generating JWT secret: %w", err)
	}
	jwtSecret := base64.StdEncoding.EncodeToString(secretBytes)

	// SMTP
	fmt.Println("\n--- Mail Configuration ---")
	smtpHost := prompt(reader, "SMTP host (leave empty for log-only mail)", "")
	var smtpPort, smtpUser, smtpFrom string
	if smtpHost != "" {
		smtpPort = prompt(reader, "SMTP port", "587")
		smtpUser = prompt(reader, "SMTP user", "")
		smtpFrom = prompt(reader, "From address", "noreply@example.com")
	}
	baseURL := prompt(reader, "External base URL for email links", "http://"+httpAddr)

	// Logging
	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	// Generate config
	var cfg strings.Builder
	cfg.WriteString("# asf-auth configuration\n")
	cfg.WriteString("# Generated by asf-auth init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: \"%s\"\n", httpAddr))
	cfg.WriteString("  login_rate_per_second: 1\n")
	cfg.WriteString("  login_burst: 5\n")
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", dbPath))
	cfg.WriteString("\n")

	cfg.WriteString("auth:\n")
	cfg.WriteString(fmt.Sprintf("  jwt_secret: \"%s\"\n", jwtSecret))
	cfg.WriteString(fmt.Sprintf("  provider: \"%s\"\n", provider))
	cfg.WriteString("  max_login_attempts: 5\n")
	cfg.WriteString("  lockout_duration: \"30m\"\n")
	cfg.WriteString("  session_ttl: \"1h\"\n")
	cfg.WriteString("  verification_ttl: \"24h\"\n")
	cfg.WriteString("  reset_ttl: \"1h\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("smtp:\n")
	if smtpHost != "" {
		cfg.WriteString(fmt.Sprintf("  host: \"%s\"\n", smtpHost))
		cfg.WriteString(fmt.Sprintf("  port: %s\n", smtpPort))
		if smtpUser != "" {
			cfg.WriteString(fmt.Sprintf("  user: \"%s\"\n", smtpUser))
			cfg.WriteString("  password: \"${ASF_SMTP_PASSWORD}\"\n")
		}
		cfg.WriteString(fmt.Sprintf("  from: \"%s\"\n", smtpFrom))
	}
	cfg.WriteString(fmt.Sprintf("  base_url: \"%s\"\n", baseURL))
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))
	cfg.WriteString("\n")

	cfg.WriteString("sweep:\n")
	cfg.WriteString("  interval: \"1h\"\n")

	// Ensure config directory exists
	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Write config file
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	// Ensure data directory exists
	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  asf-auth serve\n")
	fmt.Println("\nTo create the first admin:")
	fmt.Printf("  asf-auth create-admin --email you@example.com\n")

	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
