// main.go - Admin control tool for the analytics pipeline
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"unipulse/internal"
	"unipulse/internal/admin"
	"unipulse/internal/config"
	"unipulse/internal/logging"
	"unipulse/internal/storage"
)

const (
	defaultShutdownTimeout = 30 * time.Second
)

// Command defines the interface for all command implementations
type Command interface {
	// Name returns the command name
	Name() string
	// Description returns the command description
	Description() string
	// Execute runs the command with the given client and args
	Execute(ctx context.Context, client *internal.Client, args []string) error
}

// The set of available commands
var commands = []Command{
	&LoginCommand{},
	&LogoutCommand{},
	&StatusCommand{},
	&ReportCommand{},
	&ExportCommand{},
	&ConsentCommand{},
	&SimulateCommand{},
	&GeoIPUpdateCommand{},
	&HelpCommand{},
}

func main() {
	flag.Parse()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v, stopping...", sig)
		cancel()
	}()

	cmdName, args := parseArgs()

	cmd := findCommand(cmdName)
	if cmd == nil {
		showUsageAndExit()
	}

	cfg := config.GetConfig()
	logger := logging.NewLogger(cfg)

	// Tokens, the visitor id and consent survive between invocations.
	if err := os.MkdirAll(filepath.Dir(cfg.GetDatabasePath()), 0o755); err != nil {
		log.Fatalf("Failed to create storage directory: %v", err)
	}
	db, err := storage.OpenDatabase(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}

	client, err := internal.NewClient(cfg,
		internal.WithLogger(logger),
		internal.WithStores(db.Store(), storage.NewMemoryStore()),
	)
	if err != nil {
		db.Close()
		log.Fatalf("Failed to initialize client: %v", err)
	}

	err = cmd.Execute(ctx, client, args)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer shutdownCancel()
	if shutdownErr := client.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Printf("Warning: Cleanup error: %v", shutdownErr)
	}
	if closeErr := db.Close(); closeErr != nil {
		log.Printf("Warning: Failed to close storage: %v", closeErr)
	}

	if err != nil {
		exitWithError(err)
	}
}

// exitWithError prints err and, for authentication problems, how to recover.
func exitWithError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	if admin.IsAuthFailure(err) {
		fmt.Fprintln(os.Stderr, "Run 'pulsectl login' to sign in again.")
	}
	var usageErr *usageError
	if errors.As(err, &usageErr) {
		os.Exit(2)
	}
	os.Exit(1)
}

// usageError is returned for invalid command-line input.
type usageError struct {
	msg string
}

func (e *usageError) Error() string {
	return e.msg
}

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// HelpCommand implements a command to show usage information
type HelpCommand struct{}

// Name returns the command name
func (c *HelpCommand) Name() string {
	return "help"
}

// Description returns the command description
func (c *HelpCommand) Description() string {
	return "Shows usage information"
}

// Execute implements the help command
func (c *HelpCommand) Execute(ctx context.Context, client *internal.Client, args []string) error {
	printUsage()
	return nil
}

// Helper functions

// parseArgs parses the command name and arguments
func parseArgs() (string, []string) {
	args := flag.Args()
	if len(args) == 0 {
		return "help", []string{}
	}
	return args[0], args[1:]
}

// findCommand finds a command by name
func findCommand(name string) Command {
	for _, cmd := range commands {
		if cmd.Name() == name {
			return cmd
		}
	}
	return nil
}

func printUsage() {
	fmt.Println("Usage: pulsectl [command] [args...]")
	fmt.Println("Available commands:")

	for _, cmd := range commands {
		fmt.Printf("  %s: %s\n", cmd.Name(), cmd.Description())
	}
}

// showUsageAndExit shows usage information and exits
func showUsageAndExit() {
	printUsage()
	os.Exit(1)
}
