package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"syscall"
	"time"

	zmq "github.com/pebbe/zmq4"
)

// clientPollInterval bounds how long blocking client calls wait before
// re-checking their context.
const clientPollInterval = 100 * time.Millisecond

// zmqSocket is a broker-side REP or PUB socket.
type zmqSocket struct {
	sock    *zmq.Socket
	addr    string
	bound   string
	release func()
	once    sync.Once
}

func newZMQEndpoint(zctx *zmq.Context, kind zmq.Type, addr string, release func()) (*zmqSocket, error) {
	sock, err := zctx.NewSocket(kind)
	if err != nil {
		return nil, err
	}
	// Pending messages must not hold up Term at shutdown.
	if err := sock.SetLinger(0); err != nil {
		sock.Close()
		return nil, err
	}
	return &zmqSocket{sock: sock, addr: addr, release: release}, nil
}

func (s *zmqSocket) Addr() string {
	if s.bound != "" {
		return s.bound
	}
	return s.addr
}

func (s *zmqSocket) Bind() error {
	if err := s.sock.Bind(s.addr); err != nil {
		return err
	}
	if last, err := s.sock.GetLastEndpoint(); err == nil && last != "" {
		s.bound = last
	}
	return nil
}

func (s *zmqSocket) Recv() ([]byte, error) {
	msg, err := s.sock.RecvBytes(zmq.DONTWAIT)
	if err != nil {
		return nil, zmqError(err)
	}
	return msg, nil
}

func (s *zmqSocket) Send(msg []byte) error {
	if _, err := s.sock.SendBytes(msg, 0); err != nil {
		return zmqError(err)
	}
	return nil
}

func (s *zmqSocket) Close() error {
	var err error
	s.once.Do(func() {
		err = s.sock.Close()
		s.release()
	})
	return err
}

// zmqError folds "try again" conditions into ErrNoMessage and a dead
// context or socket into ErrClosed.
func zmqError(err error) error {
	if errors.Is(err, zmq.ErrorSocketClosed) {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	switch zmq.AsErrno(err) {
	case zmq.Errno(syscall.EAGAIN), zmq.Errno(syscall.EINTR):
		return ErrNoMessage
	case zmq.ETERM, zmq.Errno(syscall.ENOTSOCK):
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return err
}

// zmqRequester is a client REQ socket.
type zmqRequester struct {
	sock   *zmq.Socket
	broken bool
}

func dialZMQRequest(addr string) (*zmqRequester, error) {
	sock, err := zmq.NewSocket(zmq.REQ)
	if err != nil {
		return nil, err
	}
	if err := sock.SetLinger(0); err != nil {
		sock.Close()
		return nil, err
	}
	if err := sock.Connect(addr); err != nil {
		sock.Close()
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	return &zmqRequester{sock: sock}, nil
}

func (r *zmqRequester) Request(ctx context.Context, msg []byte) ([]byte, error) {
	if r.broken {
		return nil, errors.New("transport: request socket abandoned after a cancelled request")
	}
	if _, err := r.sock.SendBytes(msg, 0); err != nil {
		return nil, zmqError(err)
	}
	if err := waitReadable(ctx, r.sock); err != nil {
		// A REQ socket cannot send again until the reply arrives.
		r.broken = true
		return nil, err
	}
	reply, err := r.sock.RecvBytes(0)
	if err != nil {
		return nil, zmqError(err)
	}
	return reply, nil
}

func (r *zmqRequester) Close() error {
	return r.sock.Close()
}

// zmqSubscriber is a client SUB socket subscribed to every message.
type zmqSubscriber struct {
	sock *zmq.Socket
}

func dialZMQSubscribe(addr string) (*zmqSubscriber, error) {
	sock, err := zmq.NewSocket(zmq.SUB)
	if err != nil {
		return nil, err
	}
	if err := sock.SetLinger(0); err != nil {
		sock.Close()
		return nil, err
	}
	if err := sock.SetSubscribe(""); err != nil {
		sock.Close()
		return nil, err
	}
	if err := sock.Connect(addr); err != nil {
		sock.Close()
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	return &zmqSubscriber{sock: sock}, nil
}

func (s *zmqSubscriber) Recv(ctx context.Context) ([]byte, error) {
	if err := waitReadable(ctx, s.sock); err != nil {
		return nil, err
	}
	msg, err := s.sock.RecvBytes(0)
	if err != nil {
		return nil, zmqError(err)
	}
	return msg, nil
}

func (s *zmqSubscriber) Close() error {
	return s.sock.Close()
}

func waitReadable(ctx context.Context, sock *zmq.Socket) error {
	poller := zmq.NewPoller()
	poller.Add(sock, zmq.POLLIN)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		polled, err := poller.Poll(clientPollInterval)
		if err != nil {
			if err := zmqError(err); !errors.Is(err, ErrNoMessage) {
				return err
			}
			continue
		}
		if len(polled) > 0 {
			return nil
		}
	}
}
