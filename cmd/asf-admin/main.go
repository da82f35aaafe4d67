// ABOUTME: Operator CLI for asf-auth account management
// ABOUTME: Works directly against the SQLite database for user and session administration

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/2389/asf-auth/internal/config"
	"github.com/2389/asf-auth/internal/store"
)

const banner = `
            __               _           _
  __ _ ___ / _|       __ _ _| |_ __ ___ (_)_ __
 / _' / __| |_ _____ / _' / _' | '_ ' _ \| | '_ \
| (_| \__ \  _|_____| (_| \_| | | | | | | | | | |
 \__,_|___/_|        \__,_|\__,_|_| |_| |_|_| |_|
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "users":
		err = cmdUsers(ctx, args)
	case "sessions":
		err = cmdSessions(ctx, args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: asf-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  users                        List all accounts")
	fmt.Println("  users list                   List all accounts")
	fmt.Println("  users role <id> <role>       Set an account's role (user/manager/admin)")
	fmt.Println("  users activate <id>          Re-enable a deactivated account")
	fmt.Println("  users deactivate <id>        Disable an account and end its sessions")
	fmt.Println("  users verify <id>            Mark an account's email verified")
	fmt.Println("  users delete <id>            Delete an account and everything attached")
	fmt.Println("  sessions revoke <user-id>    End all of a user's sessions")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  ASF_AUTH_CONFIG              Config file path (default: ~/.config/asf-auth/auth.yaml)")
	fmt.Println()
}

// getConfigPath mirrors the server's config resolution.
func getConfigPath() string {
	if envPath := os.Getenv("ASF_AUTH_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "auth.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "asf-auth", "auth.yaml")
}

func openStore() (store.Store, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return st, nil
}

func cmdUsers(ctx context.Context, args []string) error {
	if len(args) == 0 || args[0] == "list" {
		return usersList(ctx)
	}

	sub := args[0]
	rest := args[1:]
	switch sub {
	case "role":
		if len(rest) != 2 {
			return fmt.Errorf("usage: asf-admin users role <id> <role>")
		}
		return usersSetRole(ctx, rest[0], store.Role(rest[1]))
	case "activate":
		if len(rest) != 1 {
			return fmt.Errorf("usage: asf-admin users activate <id>")
		}
		return usersSetActive(ctx, rest[0], true)
	case "deactivate":
		if len(rest) != 1 {
			return fmt.Errorf("usage: asf-admin users deactivate <id>")
		}
		return usersSetActive(ctx, rest[0], false)
	case "verify":
		if len(rest) != 1 {
			return fmt.Errorf("usage: asf-admin users verify <id>")
		}
		return usersVerify(ctx, rest[0])
	case "delete":
		if len(rest) != 1 {
			return fmt.Errorf("usage: asf-admin users delete <id>")
		}
		return usersDelete(ctx, rest[0])
	default:
		return fmt.Errorf("unknown users subcommand: %s", sub)
	}
}

func usersList(ctx context.Context) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	users, err := st.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("listing users: %w", err)
	}

	cyan := color.New(color.FgCyan)
	cyan.Printf("%d account(s)\n\n", len(users))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tEMAIL\tROLE\tACTIVE\tVERIFIED\tLOCKED\tLAST LOGIN")
	now := time.Now()
	for _, u := range users {
		locked := "-"
		if u.Locked(now) {
			locked = "until " + u.LockedUntil.Local().Format("15:04:05")
		}
		lastLogin := "-"
		if u.LastLogin != nil {
			lastLogin = u.LastLogin.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%t\t%s\t%s\n",
			u.ID, u.Email, u.Role, u.Active, u.EmailVerified, locked, lastLogin)
	}
	return w.Flush()
}

func usersSetRole(ctx context.Context, id string, role store.Role) error {
	if !store.ValidRole(role) {
		return fmt.Errorf("unknown role %q (valid: user, manager, admin)", role)
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.SetUserRole(ctx, id, role); err != nil {
		return fmt.Errorf("setting role: %w", err)
	}
	// Live sessions carry the old role in their token; end them so the
	// change takes effect on next login.
	if err := st.RevokeUserSessions(ctx, id); err != nil {
		return fmt.Errorf("revoking sessions: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Role set to %s (existing sessions revoked)\n", role)
	return nil
}

func usersSetActive(ctx context.Context, id string, active bool) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.SetUserActive(ctx, id, active); err != nil {
		return fmt.Errorf("updating account: %w", err)
	}

	green := color.New(color.FgGreen)
	if active {
		green.Println("✓ Account activated")
		return nil
	}
	if err := st.RevokeUserSessions(ctx, id); err != nil {
		return fmt.Errorf("revoking sessions: %w", err)
	}
	green.Println("✓ Account deactivated, sessions revoked")
	return nil
}

func usersVerify(ctx context.Context, id string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.MarkEmailVerified(ctx, id); err != nil {
		return fmt.Errorf("marking verified: %w", err)
	}

	color.New(color.FgGreen).Println("✓ Email marked verified")
	return nil
}

func usersDelete(ctx context.Context, id string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	user, err := st.GetUser(ctx, id)
	if err != nil {
		return fmt.Errorf("looking up user: %w", err)
	}

	if err := st.DeleteUser(ctx, id); err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}

	color.New(color.FgGreen).Printf("✓ Deleted %s and all attached sessions and tokens\n", user.Email)
	return nil
}

func cmdSessions(ctx context.Context, args []string) error {
	if len(args) != 2 || args[0] != "revoke" {
		return fmt.Errorf("usage: asf-admin sessions revoke <user-id>")
	}
	userID := args[1]

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	// Confirm the user exists so a typo reports instead of silently
	// revoking nothing.
	if _, err := st.GetUser(ctx, userID); err != nil {
		return fmt.Errorf("looking up user: %w", err)
	}
	if err := st.RevokeUserSessions(ctx, userID); err != nil {
		return fmt.Errorf("revoking sessions: %w", err)
	}

	color.New(color.FgGreen).Println("✓ Sessions revoked")
	return nil
}
