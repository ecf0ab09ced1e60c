// Package client connects sources, servers and sinks to a Monto broker.
//
// A Source publishes versions, a Server turns the versions it receives into
// products, and a Sink consumes products. Each blocks on the broker's "ack"
// before returning from a send. Payloads can optionally be sealed with NaCl
// box so the broker and other subscribers only ever see ciphertext.
package client

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SWAI-Ltd/monto/internal/config"
	"github.com/SWAI-Ltd/monto/internal/crypto"
	"github.com/SWAI-Ltd/monto/internal/discovery"
	"github.com/SWAI-Ltd/monto/internal/transport"
)

// DefaultLookupTimeout bounds Locate's mDNS browse.
const DefaultLookupTimeout = 5 * time.Second

var (
	// ErrClosed is returned when using a client after Close.
	ErrClosed = errors.New("client closed")
	// ErrEmpty is returned for empty payloads, which the broker drops without replying.
	ErrEmpty = errors.New("client: empty message")
	// ErrUnexpectedReply is returned when the broker answers with something other than "ack".
	ErrUnexpectedReply = errors.New("client: unexpected reply")
	// ErrInvalid wraps payloads that arrived but could not be opened or
	// decoded. The subscription is still usable after it.
	ErrInvalid = errors.New("client: invalid message")
)

var ackPayload = []byte("ack")

// Option configures a Source, Server or Sink.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	keys      *crypto.KeyPair
	recipient *[crypto.PublicKeySize]byte
	languages map[string]bool
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithSealing opens incoming payloads with keys and seals outgoing ones for
// recipient. A nil recipient leaves outgoing payloads in the clear.
func WithSealing(keys *crypto.KeyPair, recipient *[crypto.PublicKeySize]byte) Option {
	return func(o *options) {
		o.keys = keys
		o.recipient = recipient
	}
}

// WithLanguages restricts a Server or Sink to messages in the given
// languages. Without it every language is accepted.
func WithLanguages(langs ...string) Option {
	return func(o *options) {
		if o.languages == nil {
			o.languages = make(map[string]bool, len(langs))
		}
		for _, l := range langs {
			o.languages[l] = true
		}
	}
}

func newOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

func (o *options) accepts(language string) bool {
	return len(o.languages) == 0 || o.languages[language]
}

func (o *options) seal(payload []byte) ([]byte, error) {
	if o.keys == nil || o.recipient == nil {
		return payload, nil
	}
	return crypto.SealEnvelope(payload, o.recipient, o.keys)
}

func (o *options) open(payload []byte) ([]byte, error) {
	if o.keys == nil {
		return payload, nil
	}
	plain, sender, err := crypto.OpenEnvelope(payload, o.keys)
	if err != nil {
		return nil, err
	}
	o.logger.Debug("opened envelope", "sender", hex.EncodeToString(crypto.KeyID(sender)))
	return plain, nil
}

// request sends payload and waits for the broker's ack.
func request(ctx context.Context, req transport.Requester, payload []byte) error {
	if len(payload) == 0 {
		return ErrEmpty
	}
	reply, err := req.Request(ctx, payload)
	if err != nil {
		return err
	}
	if !bytes.Equal(reply, ackPayload) {
		return fmt.Errorf("%w: %q", ErrUnexpectedReply, reply)
	}
	return nil
}

// Locate returns the broker's addresses. With discover set they are looked
// up over mDNS under name; otherwise they are read from the configuration
// file at path.
func Locate(ctx context.Context, path string, discover bool, name string) (*config.Config, error) {
	if !discover {
		return config.LoadAndValidate(path)
	}
	ctx, cancel := context.WithTimeout(ctx, DefaultLookupTimeout)
	defer cancel()
	return discovery.Lookup(ctx, name)
}
