package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/snipvault/snipvault/dispatch"
	"github.com/snipvault/snipvault/internal/app"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// cliCommands are the subcommands that operate the store directly
// instead of starting the daemon.
var cliCommands = map[string]bool{
	"add": true, "list": true, "search": true, "show": true,
	"delete": true, "export": true, "clear": true,
	"help": true,
}

// isCLIMode reports whether this invocation is a store subcommand
// rather than a daemon run.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // no args, run the daemon
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v"
}

// isHelpOrVersion reports a help or version request, which needs no
// store access.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

func main() {
	// --help and --version never touch the store.
	if isHelpOrVersion() {
		if err := newCLIApp(nil).Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if isCLIMode() {
		runCLI()
		return
	}

	// Unknown argument: refuse rather than silently starting the daemon.
	if len(os.Args) >= 2 {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'snipvault --help' for usage.\n")
		os.Exit(1)
	}

	runDaemon()
}

// runDaemon starts the capture pipeline and blocks until SIGINT or
// SIGTERM.
func runDaemon() {
	level := slog.LevelInfo
	if os.Getenv("SNIPVAULT_DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("starting snipvault", "version", version, "commit", commit, "date", date)

	svc, err := app.New(app.Options{
		Version: version,
		Callbacks: dispatch.Callbacks{
			OnStatus: func(status string) {
				slog.Debug("status", "text", status)
			},
		},
	})
	if err != nil {
		slog.Error("init", "error", err)
		os.Exit(1)
	}

	if err := svc.Start(); err != nil {
		slog.Error("start pipeline", "error", err)
		os.Exit(1)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	slog.Info("shutting down")
	svc.Shutdown()
}
