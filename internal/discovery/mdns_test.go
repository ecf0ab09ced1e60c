package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextRoundTrip(t *testing.T) {
	addrs := [4]string{"tcp://10.0.0.2:5000", "tcp://10.0.0.2:5001", "quic://10.0.0.2:5002", "tcp://10.0.0.2:5003"}

	cfg, ok := DecodeText(EncodeText(addrs))
	require.True(t, ok)
	assert.Equal(t, addrs, cfg.Addrs())
}

func TestDecodeTextIncomplete(t *testing.T) {
	tests := []struct {
		name string
		text []string
	}{
		{"empty", nil},
		{"missing sinks", []string{"from_sources=tcp://a:1", "to_servers=tcp://a:2", "from_servers=tcp://a:3"}},
		{"empty value", []string{"from_sources=tcp://a:1", "to_servers=tcp://a:2", "from_servers=tcp://a:3", "to_sinks="}},
		{"unknown keys only", []string{"txtvers=1", "path=/"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := DecodeText(tt.text)
			assert.False(t, ok)
		})
	}
}

func TestDecodeTextIgnoresExtraRecords(t *testing.T) {
	text := append([]string{"txtvers=1", "garbage"}, EncodeText([4]string{"tcp://a:1", "tcp://a:2", "tcp://a:3", "tcp://a:4"})...)

	cfg, ok := DecodeText(text)
	require.True(t, ok)
	assert.Equal(t, "tcp://a:4", cfg.ToSinks)
}

func TestServicePort(t *testing.T) {
	tests := []struct {
		addr string
		want int
	}{
		{"tcp://127.0.0.1:41234", 41234},
		{"quic://[::1]:6000", 6000},
		{"tcp://*:5010", 5010},
		{"tcp://127.0.0.1:*", 5000},
		{"ipc:///tmp/monto-sources", 5000},
		{"inproc://sources", 5000},
		{"tcp://127.0.0.1:70000", 5000},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			assert.Equal(t, tt.want, ServicePort(tt.addr))
		})
	}
}
