package transport

import "context"

// Requester is the peer side of a ReplyEndpoint: every Request blocks until
// its reply arrives or ctx is done.
type Requester interface {
	Request(ctx context.Context, msg []byte) ([]byte, error)
	Close() error
}

// Subscriber is the peer side of a BroadcastEndpoint. It only sees messages
// published after it connected.
type Subscriber interface {
	Recv(ctx context.Context) ([]byte, error)
	Close() error
}

// DialRequest connects a Requester to the reply endpoint at addr.
func DialRequest(ctx context.Context, addr string) (Requester, error) {
	if isQUIC(addr) {
		return dialQUICRequest(ctx, addr)
	}
	return dialZMQRequest(addr)
}

// DialSubscribe connects a Subscriber to the broadcast endpoint at addr.
// ZeroMQ subscriptions complete asynchronously, so messages published right
// after DialSubscribe returns may still be missed.
func DialSubscribe(ctx context.Context, addr string) (Subscriber, error) {
	if isQUIC(addr) {
		return dialQUICSubscribe(ctx, addr)
	}
	return dialZMQSubscribe(addr)
}
