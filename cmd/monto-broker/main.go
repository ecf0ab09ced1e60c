// monto-broker relays versions from sources to servers and products from
// servers to sinks.
// Usage: monto-broker [-config ~/.monto]
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"os"
	"syscall"

	"github.com/SWAI-Ltd/monto/internal/broker"
	"github.com/SWAI-Ltd/monto/internal/config"
	"github.com/SWAI-Ltd/monto/internal/discovery"
	"github.com/SWAI-Ltd/monto/internal/version"
)

// Exit codes.
const (
	exitOK          = 0
	exitBind        = 1
	exitUsage       = 2
	exitConfigError = -1
)

// openChannels is swapped in tests to observe bind attempts.
var openChannels = broker.OpenChannels

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	defaultPath, err := config.DefaultPath()
	if err != nil {
		defaultPath = config.DefaultFile
	}
	fs := flag.NewFlagSet("monto-broker", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", defaultPath, "configuration file")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	logger := slog.New(slog.NewTextHandler(stdout, nil))
	errLogger := slog.New(slog.NewTextHandler(stderr, nil))

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		errLogger.Error("Error during parsing of configuration file, aborting", "path", *configPath, "err", err)
		return exitConfigError
	}
	logger.Info("starting monto", "version", version.String(), "config", *configPath, "threads", cfg.Threads)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	channels, err := openChannels(ctx, cfg, logger)
	if err != nil {
		var bindErr *broker.BindError
		if errors.As(err, &bindErr) {
			errLogger.Error(bindErr.Category.Reason(), "addr", bindErr.Addr, "role", bindErr.Role.String(), "err", bindErr.Err)
		} else {
			errLogger.Error("failed to create channels", "err", err)
		}
		return exitBind
	}
	defer channels.Close()

	relay, err := channels.Relay(logger)
	if err != nil {
		errLogger.Error("failed to create poller", "err", err)
		return exitBind
	}

	if cfg.Discovery.Enabled {
		adv, err := discovery.Advertise(cfg.Discovery.Name, channels.Addrs())
		if err != nil {
			logger.Warn("mDNS advertisement failed", "err", err)
		} else {
			defer adv.Close()
			logger.Info("advertising broker", "name", cfg.Discovery.Name, "service", discovery.ServiceType)
		}
	}

	shutdown := broker.HandleSignals(ctx, relay, logger, os.Interrupt, syscall.SIGTERM)
	defer shutdown.Release()

	runErr := relay.Run()
	stats := relay.Stats()
	logger.Info("Monto is shutting down",
		"sources_forwarded", stats.Sources.Forwarded,
		"servers_forwarded", stats.Servers.Forwarded,
		"dropped", stats.Sources.Dropped+stats.Servers.Dropped,
	)
	if runErr != nil {
		errLogger.Error("relay stopped", "err", runErr)
		return exitBind
	}
	if err := channels.Close(); err != nil {
		errLogger.Error("closing channels", "err", err)
	}
	return exitOK
}
