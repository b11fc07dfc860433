package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"unipulse/internal"
	"unipulse/internal/identity"
)

// LoginCommand exchanges admin credentials for a token pair
type LoginCommand struct{}

func (c *LoginCommand) Name() string        { return "login" }
func (c *LoginCommand) Description() string { return "Signs in to the admin reporting API" }

func (c *LoginCommand) Execute(ctx context.Context, client *internal.Client, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	username := fs.String("username", "", "admin username")
	if err := fs.Parse(args); err != nil {
		return usagef("%v", err)
	}
	if *username == "" && fs.NArg() > 0 {
		*username = fs.Arg(0)
	}

	reader := bufio.NewReader(os.Stdin)
	if *username == "" {
		fmt.Print("Username: ")
		input, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read username: %w", err)
		}
		*username = strings.TrimSpace(input)
	}
	if *username == "" {
		return usagef("username is required")
	}

	password, err := readPassword(reader)
	if err != nil {
		return err
	}

	if _, err := client.Admin.Login(ctx, *username, password); err != nil {
		return err
	}
	fmt.Printf("Logged in as %s\n", *username)
	return nil
}

// readPassword prompts without echo on a terminal and reads a plain line
// otherwise, so the password can be piped in. Only the line ending is
// stripped; surrounding spaces belong to the password.
func readPassword(reader *bufio.Reader) (string, error) {
	if !term.IsTerminal(int(syscall.Stdin)) {
		return readPasswordLine(reader)
	}

	fmt.Print("Password: ")
	passBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return trimLineEnding(string(passBytes)), nil
}

func readPasswordLine(reader *bufio.Reader) (string, error) {
	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return trimLineEnding(input), nil
}

func trimLineEnding(s string) string {
	return strings.TrimRight(s, "\r\n")
}

// LogoutCommand forgets the stored tokens
type LogoutCommand struct{}

func (c *LogoutCommand) Name() string        { return "logout" }
func (c *LogoutCommand) Description() string { return "Forgets the stored admin tokens" }

func (c *LogoutCommand) Execute(ctx context.Context, client *internal.Client, args []string) error {
	if err := client.Admin.Logout(); err != nil {
		return fmt.Errorf("failed to clear tokens: %w", err)
	}
	fmt.Println("Logged out")
	return nil
}

// StatusCommand shows the configuration and the stored credentials
type StatusCommand struct{}

func (c *StatusCommand) Name() string        { return "status" }
func (c *StatusCommand) Description() string { return "Shows endpoints, identity and admin session status" }

func (c *StatusCommand) Execute(ctx context.Context, client *internal.Client, args []string) error {
	cfg := client.Config
	visitorID := client.Tracker.VisitorID()

	fmt.Println("Status:")
	fmt.Printf("- Analytics API: %s\n", cfg.AnalyticsAPIBase)
	fmt.Printf("- Admin API: %s\n", cfg.AdminAPIBase)
	fmt.Printf("- Geo: %s (policy %s)\n", cfg.GeoProvider, cfg.GeoPolicy)
	fmt.Printf("- Visitor: %s (%s)\n", identity.Alias(visitorID), visitorID)
	fmt.Printf("- Geo consent: %s\n", client.Tracker.Consent())

	if !client.Admin.Authenticated() {
		fmt.Println("- Admin session: not logged in")
		return nil
	}

	info, err := client.Admin.TokenInfo(time.Now())
	if err != nil {
		fmt.Println("- Admin session: token present (not a readable JWT)")
		return nil
	}

	source := "login"
	if info.Static {
		source = "environment"
	}
	fmt.Printf("- Admin session: %s token for %q\n", source, info.Subject)
	if !info.ExpiresAt.IsZero() {
		state := "valid"
		if info.Expired {
			state = "expired, will refresh on next request"
		}
		fmt.Printf("- Access token expires: %s (%s)\n", info.ExpiresAt.Local().Format(time.RFC1123), state)
	}
	return nil
}
