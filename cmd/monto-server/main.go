// monto-server runs one of the built-in servers against a broker.
// Usage: monto-server [-selection] reflect|length|reverse
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/SWAI-Ltd/monto/client"
	"github.com/SWAI-Ltd/monto/internal/cli"
)

func main() {
	var flags cli.Flags
	flags.Register(flag.CommandLine)
	useSelection := flag.Bool("selection", false, "reflect: reflect only the selected text")
	langs := flag.String("languages", "", "comma-separated languages to serve (default: all)")
	flag.Parse()

	logger := flags.Logger(os.Stderr)
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: monto-server [-selection] reflect|length|reverse")
		os.Exit(2)
	}
	handler, err := handlerFor(flag.Arg(0), *useSelection)
	if err != nil {
		fmt.Fprintln(os.Stderr, "monto-server:", err)
		os.Exit(2)
	}

	ctx, cancel := cli.SignalContext()
	defer cancel()

	cfg, err := flags.Broker(ctx)
	if err != nil {
		logger.Error("cannot locate broker", "err", err)
		os.Exit(1)
	}
	opts, err := flags.Options(logger)
	if err != nil {
		logger.Error("invalid flags", "err", err)
		os.Exit(2)
	}
	if *langs != "" {
		opts = append(opts, client.WithLanguages(strings.Split(*langs, ",")...))
	}

	srv, err := client.NewServer(ctx, cfg, opts...)
	if err != nil {
		logger.Error("connect failed", "err", err)
		os.Exit(1)
	}
	defer srv.Close()

	logger.Info("serving", "product", flag.Arg(0), "to_servers", cfg.ToServers, "from_servers", cfg.FromServers)
	if err := srv.Serve(ctx, handler); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server stopped", "err", err)
		srv.Close()
		os.Exit(1)
	}
}
