package transport

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/SWAI-Ltd/monto/internal/proto"
)

// Default idle timeout: 5 minutes (QUIC default is 30s, too short for idle subscribers)
var defaultQuicConfig = &quic.Config{
	MaxIdleTimeout:  5 * time.Minute,
	KeepAlivePeriod: 30 * time.Second,
}

const (
	ProtoID = "monto/1"

	// requestBacklog is how many requests from distinct peers may wait for
	// the relay before accept goroutines block.
	requestBacklog = 64

	// sendTimeout bounds a write to one subscriber; slower subscribers are dropped.
	sendTimeout = 2 * time.Second
)

// Conn wraps a QUIC stream with frame read/write
type Conn struct {
	Stream quic.Stream
	Conn   quic.Connection
}

// NewConnWithConn wraps a QUIC stream and connection
func NewConnWithConn(stream quic.Stream, conn quic.Connection) *Conn {
	return &Conn{Stream: stream, Conn: conn}
}

// SendFrame encodes and sends a frame
func (c *Conn) SendFrame(f *proto.Frame) error {
	return f.Encode(c.Stream)
}

// RecvFrame reads and decodes a frame
func (c *Conn) RecvFrame(f *proto.Frame) error {
	return f.Decode(c.Stream)
}

// Close closes the stream and its connection
func (c *Conn) Close() error {
	err := c.Stream.Close()
	if c.Conn != nil {
		c.Conn.CloseWithError(0, "")
	}
	return err
}

// generateTLSConfig creates a self-signed cert for development
func generateTLSConfig() (*tls.Config, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	tlsCert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{tlsCert},
		NextProtos:   []string{ProtoID},
	}, nil
}

// Server runs a QUIC listener
type Server struct {
	Listener *quic.Listener
	Handler  func(*Conn)
	closed   atomic.Bool
}

// ListenQUICWithHandler starts a QUIC server with handler set before accepting.
func ListenQUICWithHandler(ctx context.Context, addr string, handler func(*Conn)) (*Server, error) {
	tlsCfg, err := generateTLSConfig()
	if err != nil {
		return nil, err
	}
	listener, err := quic.ListenAddr(addr, tlsCfg, defaultQuicConfig)
	if err != nil {
		return nil, err
	}
	s := &Server{Listener: listener, Handler: handler}
	go s.acceptLoop(ctx)
	return s, nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		sess, err := s.Listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || s.closed.Load() {
				return
			}
			continue
		}
		go func() {
			stream, err := sess.AcceptStream(ctx)
			if err != nil {
				sess.CloseWithError(0, "")
				return
			}
			c := NewConnWithConn(stream, sess)
			defer c.Close()
			if s.Handler != nil {
				s.Handler(c)
			} else {
				io.Copy(io.Discard, stream)
			}
		}()
	}
}

// LocalAddr returns the address of the QUIC listener
func (s *Server) LocalAddr() string {
	return s.Listener.Addr().String()
}

// Close stops accepting and tears down the listener.
func (s *Server) Close() error {
	s.closed.Store(true)
	return s.Listener.Close()
}

// DialQUIC connects to a QUIC server (skips cert verification for dev)
func DialQUIC(ctx context.Context, addr string) (*Conn, error) {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{ProtoID},
	}
	sess, err := quic.DialAddr(ctx, addr, tlsCfg, defaultQuicConfig)
	if err != nil {
		return nil, err
	}
	stream, err := sess.OpenStreamSync(ctx)
	if err != nil {
		sess.CloseWithError(0, "")
		return nil, err
	}
	return NewConnWithConn(stream, sess), nil
}

// quicHostPort strips the scheme from a quic:// address.
func quicHostPort(addr string) (string, error) {
	hostport := strings.TrimPrefix(addr, SchemeQUIC)
	if _, _, err := net.SplitHostPort(hostport); err != nil {
		return "", &categoryError{cat: CategoryInvalidEndpoint, msg: "invalid quic address " + addr, err: err}
	}
	return hostport, nil
}

type pendingRequest struct {
	payload []byte
	reply   chan []byte
}

// quicReply serves request/reply peers. Each peer stream carries one
// request at a time and waits for its reply before sending the next.
type quicReply struct {
	ctx      context.Context
	addr     string
	server   *Server
	requests chan *pendingRequest
	current  *pendingRequest
	done     chan struct{}
	release  func()
	once     sync.Once

	mu    sync.Mutex
	wakes []chan struct{}
}

func newQUICReply(ctx context.Context, addr string, release func()) *quicReply {
	return &quicReply{
		ctx:      ctx,
		addr:     addr,
		requests: make(chan *pendingRequest, requestBacklog),
		done:     make(chan struct{}),
		release:  release,
	}
}

func (r *quicReply) Addr() string {
	if r.server != nil {
		return SchemeQUIC + r.server.LocalAddr()
	}
	return r.addr
}

func (r *quicReply) Bind() error {
	hostport, err := quicHostPort(r.addr)
	if err != nil {
		return err
	}
	srv, err := ListenQUICWithHandler(r.ctx, hostport, r.handleConn)
	if err != nil {
		return err
	}
	r.server = srv
	return nil
}

func (r *quicReply) handleConn(c *Conn) {
	var f proto.Frame
	for {
		if err := c.RecvFrame(&f); err != nil {
			return
		}
		if f.Type != proto.FrameTypeRequest {
			c.SendFrame(&proto.Frame{Type: proto.FrameTypeError, Error: &proto.ErrorFrame{
				Code: "UNEXPECTED_FRAME", Message: fmt.Sprintf("expected request frame, got type %d", f.Type),
			}})
			continue
		}
		req := &pendingRequest{payload: f.Payload, reply: make(chan []byte, 1)}
		select {
		case r.requests <- req:
		case <-r.done:
			return
		}
		r.notify()

		select {
		case msg := <-req.reply:
			if err := c.SendFrame(&proto.Frame{Type: proto.FrameTypeReply, Payload: msg}); err != nil {
				return
			}
		case <-r.done:
			return
		}
	}
}

func (r *quicReply) Recv() ([]byte, error) {
	if r.isClosed() {
		return nil, ErrClosed
	}
	select {
	case req := <-r.requests:
		// A request left unanswered is abandoned; its peer keeps waiting.
		r.current = req
		return req.payload, nil
	default:
		return nil, ErrNoMessage
	}
}

func (r *quicReply) Send(msg []byte) error {
	if r.isClosed() {
		return ErrClosed
	}
	if r.current == nil {
		return ErrNoRequest
	}
	r.current.reply <- msg
	r.current = nil
	return nil
}

func (r *quicReply) Close() error {
	var err error
	r.once.Do(func() {
		close(r.done)
		if r.server != nil {
			err = r.server.Close()
		}
		r.release()
	})
	return err
}

func (r *quicReply) ready() bool {
	return len(r.requests) > 0
}

func (r *quicReply) isClosed() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

func (r *quicReply) watch(wake chan struct{}) {
	r.mu.Lock()
	r.wakes = append(r.wakes, wake)
	r.mu.Unlock()
}

func (r *quicReply) notify() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.wakes {
		select {
		case w <- struct{}{}:
		default:
		}
	}
}

// quicBroadcast publishes to subscribers that opened a stream and sent a
// subscribe frame.
type quicBroadcast struct {
	ctx     context.Context
	addr    string
	server  *Server
	done    chan struct{}
	release func()
	once    sync.Once

	mu   sync.Mutex
	subs map[*Conn]struct{}
}

func newQUICBroadcast(ctx context.Context, addr string, release func()) *quicBroadcast {
	return &quicBroadcast{
		ctx:     ctx,
		addr:    addr,
		done:    make(chan struct{}),
		release: release,
		subs:    make(map[*Conn]struct{}),
	}
}

func (b *quicBroadcast) Addr() string {
	if b.server != nil {
		return SchemeQUIC + b.server.LocalAddr()
	}
	return b.addr
}

func (b *quicBroadcast) Bind() error {
	hostport, err := quicHostPort(b.addr)
	if err != nil {
		return err
	}
	srv, err := ListenQUICWithHandler(b.ctx, hostport, b.handleConn)
	if err != nil {
		return err
	}
	b.server = srv
	return nil
}

func (b *quicBroadcast) handleConn(c *Conn) {
	var f proto.Frame
	if err := c.RecvFrame(&f); err != nil || f.Type != proto.FrameTypeSubscribe {
		return
	}

	// The ack is written under the lock so it cannot interleave with Send.
	b.mu.Lock()
	if err := c.SendFrame(&proto.Frame{Type: proto.FrameTypeAck}); err != nil {
		b.mu.Unlock()
		return
	}
	b.subs[c] = struct{}{}
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.subs, c)
		b.mu.Unlock()
	}()
	for {
		if err := c.RecvFrame(&f); err != nil {
			return
		}
	}
}

func (b *quicBroadcast) Send(msg []byte) error {
	select {
	case <-b.done:
		return ErrClosed
	default:
	}

	// Encoded once; a message that cannot be framed reaches no subscriber
	// and leaves the subscriptions alone.
	data, err := (&proto.Frame{Type: proto.FrameTypeMessage, Payload: msg}).Marshal()
	if err != nil {
		return fmt.Errorf("transport: broadcast %d bytes: %w", len(msg), err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.subs {
		c.Stream.SetWriteDeadline(time.Now().Add(sendTimeout))
		if _, err := c.Stream.Write(data); err != nil {
			delete(b.subs, c)
			c.Conn.CloseWithError(1, "send failed")
		}
	}
	return nil
}

func (b *quicBroadcast) Close() error {
	var err error
	b.once.Do(func() {
		close(b.done)
		if b.server != nil {
			err = b.server.Close()
		}
		b.release()
	})
	return err
}

// quicRequester is the client side of a quic reply endpoint.
type quicRequester struct {
	conn   *Conn
	broken bool
}

func dialQUICRequest(ctx context.Context, addr string) (*quicRequester, error) {
	hostport, err := quicHostPort(addr)
	if err != nil {
		return nil, err
	}
	conn, err := DialQUIC(ctx, hostport)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &quicRequester{conn: conn}, nil
}

func (r *quicRequester) Request(ctx context.Context, msg []byte) ([]byte, error) {
	if r.broken {
		return nil, errors.New("transport: request stream abandoned after a cancelled request")
	}
	data, err := (&proto.Frame{Type: proto.FrameTypeRequest, Payload: msg}).Marshal()
	if err != nil {
		return nil, fmt.Errorf("transport: request of %d bytes: %w", len(msg), err)
	}

	stop := context.AfterFunc(ctx, func() { r.conn.Stream.SetDeadline(time.Now()) })
	defer stop()

	if _, err := r.conn.Stream.Write(data); err != nil {
		r.broken = true
		return nil, contextOr(ctx, err)
	}
	var f proto.Frame
	if err := r.conn.RecvFrame(&f); err != nil {
		r.broken = true
		return nil, contextOr(ctx, err)
	}
	switch f.Type {
	case proto.FrameTypeReply:
		return f.Payload, nil
	case proto.FrameTypeError:
		return nil, fmt.Errorf("transport: %s: %s", f.Error.Code, f.Error.Message)
	}
	return nil, fmt.Errorf("transport: unexpected frame type %d", f.Type)
}

func (r *quicRequester) Close() error {
	return r.conn.Close()
}

// quicSubscriber is the client side of a quic broadcast endpoint.
type quicSubscriber struct {
	conn   *Conn
	broken bool
}

func dialQUICSubscribe(ctx context.Context, addr string) (*quicSubscriber, error) {
	hostport, err := quicHostPort(addr)
	if err != nil {
		return nil, err
	}
	conn, err := DialQUIC(ctx, hostport)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	stop := context.AfterFunc(ctx, func() { conn.Stream.SetDeadline(time.Now()) })
	defer stop()

	if err := conn.SendFrame(&proto.Frame{Type: proto.FrameTypeSubscribe}); err != nil {
		conn.Close()
		return nil, contextOr(ctx, err)
	}
	var f proto.Frame
	if err := conn.RecvFrame(&f); err != nil {
		conn.Close()
		return nil, contextOr(ctx, err)
	}
	if f.Type != proto.FrameTypeAck {
		conn.Close()
		return nil, fmt.Errorf("transport: subscribe to %s not acknowledged", addr)
	}
	return &quicSubscriber{conn: conn}, nil
}

func (s *quicSubscriber) Recv(ctx context.Context) ([]byte, error) {
	if s.broken {
		return nil, errors.New("transport: subscription stream abandoned after a cancelled receive")
	}
	stop := context.AfterFunc(ctx, func() { s.conn.Stream.SetReadDeadline(time.Now()) })
	defer stop()

	var f proto.Frame
	for {
		if err := s.conn.RecvFrame(&f); err != nil {
			s.broken = true
			return nil, contextOr(ctx, err)
		}
		if f.Type == proto.FrameTypeMessage {
			return f.Payload, nil
		}
	}
}

func (s *quicSubscriber) Close() error {
	return s.conn.Close()
}

func contextOr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
