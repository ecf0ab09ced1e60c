package broker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SWAI-Ltd/monto/internal/config"
	"github.com/SWAI-Ltd/monto/internal/transport"
)

const subscribeSettle = 200 * time.Millisecond

func testConfig(from, to string) *config.Config {
	cfg := config.Default()
	cfg.FromSources = from
	cfg.ToServers = to
	cfg.FromServers = from
	cfg.ToSinks = to
	return cfg
}

// freeTCPAddr returns a loopback tcp:// address nobody is listening on.
func freeTCPAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return "tcp://" + addr
}

func TestOpenChannels(t *testing.T) {
	cs, err := OpenChannels(context.Background(), testConfig("tcp://127.0.0.1:*", "quic://127.0.0.1:0"), discardLogger)
	require.NoError(t, err)

	assert.Equal(t, 4, cs.Open())
	for i, addr := range cs.Addrs() {
		assert.NotContains(t, addr, "*", "role %s", Role(i))
		assert.False(t, strings.HasSuffix(addr, ":0"), "role %s: %s", Role(i), addr)
	}

	require.NoError(t, cs.Close())
	require.NoError(t, cs.Close())
	assert.Equal(t, 0, cs.Open())
}

func TestOpenChannelsReleasesOnBindFailure(t *testing.T) {
	taken := freeTCPAddr(t)
	cfg := &config.Config{
		FromSources: taken,
		ToServers:   taken,
		FromServers: "tcp://127.0.0.1:*",
		ToSinks:     "tcp://127.0.0.1:*",
		Threads:     1,
	}

	tctx, err := transport.NewContext(context.Background())
	require.NoError(t, err)

	cs, err := openChannels(tctx, cfg, discardLogger)
	require.Error(t, err)
	assert.Nil(t, cs)

	var bindErr *BindError
	require.True(t, errors.As(err, &bindErr))
	assert.Equal(t, RoleToServers, bindErr.Role)
	assert.Equal(t, taken, bindErr.Addr)
	assert.Equal(t, transport.CategoryAddrInUse, bindErr.Category)
	assert.Contains(t, err.Error(), "Address is already in use")
	assert.Equal(t, 0, tctx.Open())

	// The endpoint that did bind has been released with the rest.
	cfg.ToServers = "tcp://127.0.0.1:*"
	cs, err = OpenChannels(context.Background(), cfg, discardLogger)
	require.NoError(t, err)
	assert.Equal(t, taken, cs.SourceIn.Addr())
	require.NoError(t, cs.Close())
}

func TestOpenChannelsBindErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.Config
		role Role
		want transport.Category
	}{
		{
			name: "unknown protocol",
			cfg: &config.Config{
				FromSources: "tcp://127.0.0.1:*",
				ToServers:   "tcp://127.0.0.1:*",
				FromServers: "bogus://127.0.0.1:5002",
				ToSinks:     "tcp://127.0.0.1:*",
			},
			role: RoleFromServers,
			want: transport.CategoryUnsupportedProtocol,
		},
		{
			name: "quic without port",
			cfg: &config.Config{
				FromSources: "tcp://127.0.0.1:*",
				ToServers:   "tcp://127.0.0.1:*",
				FromServers: "tcp://127.0.0.1:*",
				ToSinks:     "quic://localhost",
			},
			role: RoleToSinks,
			want: transport.CategoryInvalidEndpoint,
		},
		{
			name: "missing scheme",
			cfg: &config.Config{
				FromSources: "127.0.0.1:5000",
				ToServers:   "tcp://127.0.0.1:*",
				FromServers: "tcp://127.0.0.1:*",
				ToSinks:     "tcp://127.0.0.1:*",
			},
			role: RoleFromSources,
			want: transport.CategoryInvalidEndpoint,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tctx, err := transport.NewContext(context.Background())
			require.NoError(t, err)

			_, err = openChannels(tctx, tt.cfg, discardLogger)
			var bindErr *BindError
			require.True(t, errors.As(err, &bindErr), "got %v", err)
			assert.Equal(t, tt.role, bindErr.Role)
			assert.Equal(t, tt.want, bindErr.Category)
			assert.Equal(t, 0, tctx.Open())
		})
	}
}

func TestRoleString(t *testing.T) {
	assert.Equal(t, "from_sources", RoleFromSources.String())
	assert.Equal(t, "to_sinks", RoleToSinks.String())
	assert.Equal(t, "role(7)", Role(7).String())
}

func TestBrokerEndToEnd(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.Config
	}{
		{"zmq", testConfig("tcp://127.0.0.1:*", "tcp://127.0.0.1:*")},
		{"quic", testConfig("quic://127.0.0.1:0", "quic://127.0.0.1:0")},
		{"mixed", testConfig("quic://127.0.0.1:0", "tcp://127.0.0.1:*")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			cs, err := OpenChannels(ctx, tt.cfg, discardLogger)
			require.NoError(t, err)
			defer cs.Close()

			relay, err := cs.Relay(discardLogger)
			require.NoError(t, err)
			done := make(chan error, 1)
			go func() { done <- relay.Run() }()

			server, err := transport.DialSubscribe(ctx, cs.ServerOut.Addr())
			require.NoError(t, err)
			defer server.Close()
			sink, err := transport.DialSubscribe(ctx, cs.SinkOut.Addr())
			require.NoError(t, err)
			defer sink.Close()
			time.Sleep(subscribeSettle)

			source, err := transport.DialRequest(ctx, cs.SourceIn.Addr())
			require.NoError(t, err)
			defer source.Close()
			serverReq, err := transport.DialRequest(ctx, cs.ServerIn.Addr())
			require.NoError(t, err)
			defer serverReq.Close()

			for i := 0; i < 3; i++ {
				version := []byte(fmt.Sprintf(`{"source":"doc-%d","contents":"\u0000x"}`, i))
				ack, err := source.Request(ctx, version)
				require.NoError(t, err)
				assert.Equal(t, []byte("ack"), ack)

				got, err := server.Recv(ctx)
				require.NoError(t, err)
				assert.Equal(t, version, got)

				product := append([]byte("product:"), got...)
				ack, err = serverReq.Request(ctx, product)
				require.NoError(t, err)
				assert.Equal(t, []byte("ack"), ack)

				got, err = sink.Recv(ctx)
				require.NoError(t, err)
				assert.Equal(t, product, got)
			}

			relay.Stop()
			select {
			case err := <-done:
				require.NoError(t, err)
			case <-time.After(2 * PollTimeout):
				t.Fatal("relay did not stop")
			}

			stats := relay.Stats()
			assert.Equal(t, int64(3), stats.Sources.Forwarded)
			assert.Equal(t, int64(3), stats.Servers.Forwarded)
			assert.Zero(t, stats.Sources.Dropped)

			require.NoError(t, cs.Close())
			assert.Equal(t, 0, cs.Open())
		})
	}
}

func TestBrokerOversizeForwardIsDropped(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cs, err := OpenChannels(ctx, testConfig("tcp://127.0.0.1:*", "quic://127.0.0.1:0"), discardLogger)
	require.NoError(t, err)
	defer cs.Close()
	relay, err := cs.Relay(discardLogger)
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- relay.Run() }()
	defer func() {
		relay.Stop()
		<-done
	}()

	server, err := transport.DialSubscribe(ctx, cs.ServerOut.Addr())
	require.NoError(t, err)
	defer server.Close()
	source, err := transport.DialRequest(ctx, cs.SourceIn.Addr())
	require.NoError(t, err)
	defer source.Close()

	ack, err := source.Request(ctx, make([]byte, 800*1024))
	require.NoError(t, err)
	assert.Equal(t, []byte("ack"), ack)
	assert.Eventually(t, func() bool {
		return relay.Stats().Sources.Dropped == 1
	}, time.Second, 10*time.Millisecond)
	assert.Zero(t, relay.Stats().Sources.Forwarded)

	// The subscriber was not disconnected by the failed forward.
	ack, err = source.Request(ctx, []byte("small"))
	require.NoError(t, err)
	assert.Equal(t, []byte("ack"), ack)
	got, err := server.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("small"), got)
}
