package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SWAI-Ltd/monto/internal/proto"
)

func TestHandlers(t *testing.T) {
	v := &proto.Version{
		Source:     "/tmp/a.py",
		Language:   "python",
		Contents:   "héllo",
		Selections: []proto.Selection{{Begin: 0, End: 1}},
	}

	tests := []struct {
		name      string
		selection bool
		want      proto.Product
	}{
		{"reflect", false, proto.Product{Source: "/tmp/a.py", Product: "reflect", Language: "python", Contents: "héllo"}},
		{"reflect", true, proto.Product{Source: "/tmp/a.py", Product: "reflect", Language: "python", Contents: "h"}},
		{"length", false, proto.Product{Source: "/tmp/a.py", Product: "length", Language: "number", Contents: "5"}},
		{"reverse", false, proto.Product{Source: "/tmp/a.py", Product: "reverse", Language: "text", Contents: "olléh"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := handlerFor(tt.name, tt.selection)
			require.NoError(t, err)
			got, err := h(context.Background(), v)
			require.NoError(t, err)
			assert.Equal(t, []proto.Product{tt.want}, got)
		})
	}
}

func TestUnknownHandler(t *testing.T) {
	_, err := handlerFor("upper", false)
	assert.Error(t, err)
}

func TestReflectSelectionNonASCII(t *testing.T) {
	h, err := handlerFor("reflect", true)
	require.NoError(t, err)
	got, err := h(context.Background(), &proto.Version{
		Source:     "/tmp/b.txt",
		Language:   "text",
		Contents:   "naïve café",
		Selections: []proto.Selection{{Begin: 2, End: 5}, {Begin: 6, End: 10}},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ïvecafé", got[0].Contents)
}
