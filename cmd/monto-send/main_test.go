package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SWAI-Ltd/monto/internal/proto"
)

func TestParseSelection(t *testing.T) {
	tests := []struct {
		arg     string
		want    proto.Selection
		wantErr bool
	}{
		{"0:5", proto.Selection{Begin: 0, End: 5}, false},
		{"3:3", proto.Selection{Begin: 3, End: 3}, false},
		{"5:3", proto.Selection{}, true},
		{"5", proto.Selection{}, true},
		{"a:b", proto.Selection{}, true},
		{"-1:2", proto.Selection{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			got, err := parseSelection(tt.arg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelectionsFlag(t *testing.T) {
	var s selections
	require.NoError(t, s.Set("1:2"))
	require.NoError(t, s.Set("4:8"))
	assert.Error(t, s.Set("x"))
	assert.Equal(t, "1:2,4:8", s.String())
}

func TestLanguage(t *testing.T) {
	assert.Equal(t, "py", language("script.py", ""))
	assert.Equal(t, "text", language("README", ""))
	assert.Equal(t, "java", language("script.py", "java"))
}

func TestReadVersion(t *testing.T) {
	name := filepath.Join(t.TempDir(), "hello.txt")
	require.NoError(t, os.WriteFile(name, []byte("hello"), 0o600))

	v, err := readVersion(name, "txt", []proto.Selection{{Begin: 1, End: 3}})
	require.NoError(t, err)
	assert.Equal(t, name, v.Source)
	assert.Equal(t, "hello", v.Contents)
	assert.Equal(t, "el", proto.SelectionText(v))

	_, err = readVersion(filepath.Join(t.TempDir(), "missing"), "txt", nil)
	assert.Error(t, err)
}
