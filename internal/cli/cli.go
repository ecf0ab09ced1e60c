// Package cli holds the flags shared by the Monto client tools.
package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/SWAI-Ltd/monto/client"
	"github.com/SWAI-Ltd/monto/internal/config"
	"github.com/SWAI-Ltd/monto/internal/crypto"
)

// Flags locate the broker and configure sealing.
type Flags struct {
	ConfigPath string
	Discover   bool
	Name       string
	KeyFile    string
	SealTo     string
	Verbose    bool
}

// Register adds the shared flags to fs.
func (f *Flags) Register(fs *flag.FlagSet) {
	defaultPath, err := config.DefaultPath()
	if err != nil {
		defaultPath = config.DefaultFile
	}
	fs.StringVar(&f.ConfigPath, "config", defaultPath, "configuration file")
	fs.BoolVar(&f.Discover, "discover", false, "find the broker over mDNS instead of reading -config")
	fs.StringVar(&f.Name, "name", config.DefaultDiscoveryName, "broker name to look for with -discover (empty for any)")
	fs.StringVar(&f.KeyFile, "key-file", "", "hex private key file, created if missing; enables opening sealed payloads")
	fs.StringVar(&f.SealTo, "seal-to", "", "hex public key to seal outgoing payloads for (needs -key-file)")
	fs.BoolVar(&f.Verbose, "v", false, "debug logging")
}

// Logger returns a text logger on w.
func (f *Flags) Logger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if f.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Broker returns the broker's addresses.
func (f *Flags) Broker(ctx context.Context) (*config.Config, error) {
	return client.Locate(ctx, f.ConfigPath, f.Discover, f.Name)
}

// Options turns the flags into client options.
func (f *Flags) Options(logger *slog.Logger) ([]client.Option, error) {
	opts := []client.Option{client.WithLogger(logger)}
	if f.KeyFile == "" {
		if f.SealTo != "" {
			return nil, fmt.Errorf("-seal-to needs -key-file")
		}
		return opts, nil
	}

	keys, err := crypto.LoadOrCreateKeyPair(f.KeyFile)
	if err != nil {
		return nil, err
	}
	var recipient *[crypto.PublicKeySize]byte
	if f.SealTo != "" {
		if recipient, err = crypto.ParsePublicKey(f.SealTo); err != nil {
			return nil, fmt.Errorf("-seal-to: %w", err)
		}
	}
	return append(opts, client.WithSealing(keys, recipient)), nil
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sig:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sig)
	}()
	return ctx, cancel
}
