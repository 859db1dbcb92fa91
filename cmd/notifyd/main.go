package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/pflag"

	"github.com/vladislavshiptenko/m3301-shiptenko-vladislav/internal/config"
	"github.com/vladislavshiptenko/m3301-shiptenko-vladislav/internal/demo"
	"github.com/vladislavshiptenko/m3301-shiptenko-vladislav/internal/frontend"
	"github.com/vladislavshiptenko/m3301-shiptenko-vladislav/internal/metrics"
	"github.com/vladislavshiptenko/m3301-shiptenko-vladislav/internal/notify"
	"github.com/vladislavshiptenko/m3301-shiptenko-vladislav/internal/procstats"
	"github.com/vladislavshiptenko/m3301-shiptenko-vladislav/internal/relay"
	"github.com/vladislavshiptenko/m3301-shiptenko-vladislav/internal/stream"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("notifyd", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "config.yaml", "path to config file")
	envPath := flags.String("env-file", ".env", "dotenv file loaded before the config")
	port := flags.IntP("port", "p", 0, "override server port")
	host := flags.String("host", "", "override listen host")
	demoMode := flags.Bool("demo", false, "publish demo notifications")
	natsURL := flags.String("nats", "", "NATS URL for sharing events between instances")
	logLevel := flags.String("log-level", "", "override log level (debug, info, warn, error)")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if err := loadDotEnv(*envPath); err != nil {
		return fmt.Errorf("load %s: %w", *envPath, err)
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		return err
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *demoMode {
		cfg.Demo.Enabled = true
	}
	if *natsURL != "" {
		cfg.Relay.NATSURL = *natsURL
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := metrics.New()
	bus := notify.NewBus(
		notify.WithLogger(logger),
		notify.WithObserver(collector),
		notify.WithBuffer(cfg.Stream.SubscriberBuffer),
	)
	defer bus.Close()

	publisher := notify.NewPublisher(bus)
	if cfg.Relay.NATSURL != "" {
		name := instanceName(cfg.Relay.Name)
		publisher = publisher.WithOrigin(name)

		conn, err := relay.Dial(cfg.Relay.NATSURL, name, logger)
		if err != nil {
			return err
		}
		defer conn.Close()

		r := relay.New(bus, conn, cfg.Relay.Subject, name, logger)
		if err := r.Start(ctx); err != nil {
			return err
		}
		defer r.Close()
	}

	server := stream.NewServer(cfg, bus, publisher, frontend.Handler(), logger)
	server.SetMetrics(collector)
	if sampler, err := procstats.New(); err != nil {
		logger.Warn("process stats unavailable", "error", err)
	} else {
		server.SetProcessStats(sampler.Any)
	}

	if cfg.Demo.Enabled {
		logger.Info("starting demo generator", "interval", cfg.Demo.Interval)
		demo.NewGenerator(publisher, cfg.Demo.Interval, clockwork.NewRealClock(), logger).Start(ctx)
	}

	mux := http.NewServeMux()
	server.SetupRoutes(mux)

	err = stream.ListenAndServe(ctx, cfg.Addr(), mux, cfg.Server.ShutdownTimeout, logger)
	logger.Info("shut down")
	return err
}

// loadDotEnv loads environment variables from path. Missing files are
// ignored.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// instanceName returns configured, or hostname-pid when it is empty.
func instanceName(configured string) string {
	if configured != "" {
		return configured
	}
	host, err := os.Hostname()
	if err != nil {
		host = "notifyd"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
