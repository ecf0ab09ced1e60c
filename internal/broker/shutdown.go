package broker

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
)

// Stopper is anything that can be asked to stop, such as a Relay.
type Stopper interface {
	Stop()
}

// Shutdown stops a Stopper on the first of the registered signals or when
// its context ends.
type Shutdown struct {
	sigs chan os.Signal
	done chan struct{}
}

// HandleSignals registers sigs and stops s when one arrives or ctx is done.
// The only effect on s is a single call to Stop.
func HandleSignals(ctx context.Context, s Stopper, logger *slog.Logger, sigs ...os.Signal) *Shutdown {
	if logger == nil {
		logger = slog.Default()
	}
	sd := &Shutdown{
		sigs: make(chan os.Signal, 1),
		done: make(chan struct{}),
	}
	signal.Notify(sd.sigs, sigs...)

	go func() {
		defer close(sd.done)
		select {
		case sig := <-sd.sigs:
			logger.Info("received shutdown signal", "signal", sig)
		case <-ctx.Done():
		}
		s.Stop()
	}()
	return sd
}

// Done is closed once Stop has been called.
func (sd *Shutdown) Done() <-chan struct{} {
	return sd.done
}

// Release unregisters the signals. The Stopper is not stopped by Release;
// the watching goroutine still exits when the context ends.
func (sd *Shutdown) Release() {
	signal.Stop(sd.sigs)
}
