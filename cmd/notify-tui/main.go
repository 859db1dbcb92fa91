package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/vladislavshiptenko/m3301-shiptenko-vladislav/internal/client"
	"github.com/vladislavshiptenko/m3301-shiptenko-vladislav/internal/tui/app"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("notify-tui", pflag.ContinueOnError)
	serverURL := flags.String("url", "http://127.0.0.1:8080", "base URL of the notification server")
	token := flags.String("token", "", "auth token for publishing and stats")
	userID := flags.String("user", "", "receive this user's private notifications")
	modules := flags.String("modules", "", "comma-separated modules to subscribe to (default: all)")
	transport := flags.String("transport", "sse", "stream transport: sse or ws")
	stale := flags.Duration("stale-timeout", 0, "reconnect when nothing arrives for this long (0 disables)")
	logFile := flags.String("log-file", "", "write JSON log records to this file")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	// The terminal belongs to the UI, so logs go to a file or nowhere.
	var logOut io.Writer = io.Discard
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		defer f.Close()
		logOut = f
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{Level: slog.LevelDebug}))

	var tr client.Transport
	switch *transport {
	case "sse":
		tr = client.NewSSETransport(*serverURL, logger)
	case "ws":
		tr = client.NewWSTransport(*serverURL, logger)
	default:
		return fmt.Errorf("unknown transport %q", *transport)
	}

	bridge := app.NewBridge()
	rc := client.NewReconnector(tr, bridge, client.Options{
		StaleTimeout: *stale,
		Logger:       logger,
	})
	defer rc.Close()

	cfg := client.Config{UserID: *userID, Modules: *modules}
	m := app.New(rc, client.NewHTTPClient(*serverURL, *token), cfg, *serverURL)
	p := tea.NewProgram(m, tea.WithAltScreen())
	bridge.SetProgram(p)

	start := time.Now()
	_, err := p.Run()
	logger.Info("tui exited", "uptime", time.Since(start).Round(time.Second))
	return err
}
