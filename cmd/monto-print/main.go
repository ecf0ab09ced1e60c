// monto-print subscribes to a broker's sinks endpoint and prints every
// product it receives.
// Usage: monto-print [-raw] [-config ~/.monto]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/SWAI-Ltd/monto/client"
	"github.com/SWAI-Ltd/monto/internal/cli"
	"github.com/SWAI-Ltd/monto/internal/proto"
)

func main() {
	var flags cli.Flags
	flags.Register(flag.CommandLine)
	raw := flag.Bool("raw", false, "print payloads without decoding them as products")
	langs := flag.String("languages", "", "comma-separated product languages to print (default: all)")
	flag.Parse()

	logger := flags.Logger(os.Stderr)
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

	sink, err := client.NewSink(ctx, cfg, opts...)
	if err != nil {
		logger.Error("connect failed", "err", err)
		os.Exit(1)
	}
	defer sink.Close()
	logger.Info("listening for products", "to_sinks", cfg.ToSinks)

	printed, invalid, err := printLoop(ctx, sink, *raw, os.Stdout, logger)
	logger.Info("done", "printed", printed, "invalid", invalid)
	if err != nil {
		logger.Error("subscription failed", "err", err)
		sink.Close()
		os.Exit(1)
	}
}

// receiver is the part of client.Sink monto-print uses.
type receiver interface {
	Recv(ctx context.Context) ([]byte, error)
	RecvProduct(ctx context.Context) (*proto.Product, error)
}

// printLoop prints payloads until ctx is done or the subscription fails.
// Payloads that cannot be opened or decoded are counted and skipped; any
// other receive error ends the loop and is returned.
func printLoop(ctx context.Context, r receiver, raw bool, w io.Writer, logger *slog.Logger) (printed, invalid int, err error) {
	for {
		err := next(ctx, r, raw, w)
		switch {
		case err == nil:
			printed++
		case errors.Is(err, client.ErrInvalid):
			invalid++
			logger.Warn("invalid product", "err", err)
		case ctx.Err() != nil || errors.Is(err, client.ErrClosed):
			return printed, invalid, nil
		default:
			return printed, invalid, err
		}
	}
}

// next receives one payload and prints it.
func next(ctx context.Context, sink receiver, raw bool, w io.Writer) error {
	if raw {
		data, err := sink.Recv(ctx)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s\n", data)
		return err
	}
	p, err := sink.RecvProduct(ctx)
	if err != nil {
		return err
	}
	printProduct(w, p)
	return nil
}

func printProduct(w io.Writer, p *proto.Product) {
	fmt.Fprintf(w, "%s [%s, %s]\n%s\n", p.Source, p.Product, p.Language, p.Contents)
}
