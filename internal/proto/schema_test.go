package proto

import (
	"encoding/json"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeVersion(t *testing.T) {
	data := []byte(`{"source":"/tmp/a.txt","language":"txt","contents":"hello world","selections":[{"begin":0,"end":5}]}`)

	v, err := DecodeVersion(data)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/a.txt", v.Source)
	assert.Equal(t, "txt", v.Language)
	assert.Equal(t, []Selection{{Begin: 0, End: 5}}, v.Selections)
}

func TestDecodeVersionErrors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{"not json", `nope`, "invalid Version"},
		{"missing source", `{"language":"txt"}`, "version.source required"},
		{"missing language", `{"source":"a"}`, "version.language required"},
		{"reversed selection", `{"source":"a","language":"txt","selections":[{"begin":4,"end":2}]}`, "begin 4 > end 2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeVersion([]byte(tt.data))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDecodeProduct(t *testing.T) {
	raw, err := json.Marshal(Product{Source: "a", Product: "length", Language: "number", Contents: "3"})
	require.NoError(t, err)

	p, err := DecodeProduct(raw)
	require.NoError(t, err)
	assert.Equal(t, "length", p.Product)

	_, err = DecodeProduct([]byte(`{"source":"a"}`))
	assert.EqualError(t, err, "product.product required")
}

func TestSelectionText(t *testing.T) {
	v := &Version{Contents: "hello brave world"}
	assert.Equal(t, "", SelectionText(v))

	v.Selections = []Selection{{Begin: 0, End: 5}, {Begin: 12, End: 17}}
	assert.Equal(t, "helloworld", SelectionText(v))

	v.Selections = []Selection{{Begin: 12, End: 100}}
	assert.Equal(t, "world", SelectionText(v))
}

func TestSelectionTextCountsRunes(t *testing.T) {
	v := &Version{Contents: "héllo", Selections: []Selection{{Begin: 0, End: 2}}}
	got := SelectionText(v)
	assert.Equal(t, "hé", got)
	assert.True(t, utf8.ValidString(got))

	v = &Version{Contents: "日本語のテキスト", Selections: []Selection{{Begin: 2, End: 4}, {Begin: 7, End: 50}}}
	assert.Equal(t, "語のト", SelectionText(v))
}
