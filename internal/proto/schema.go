package proto

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Selection is a half-open range [Begin, End) of a version's contents,
// counted in code points (runes), not bytes.
type Selection struct {
	Begin int `json:"begin"`
	End   int `json:"end"`
}

// Version is what sources publish: the current contents of one source.
type Version struct {
	Source     string      `json:"source"`
	Language   string      `json:"language"`
	Contents   string      `json:"contents"`
	Selections []Selection `json:"selections"`
}

// Product is what servers derive from a version and sinks consume.
type Product struct {
	Source   string `json:"source"`
	Product  string `json:"product"`
	Language string `json:"language"`
	Contents string `json:"contents"`
}

// Validate checks that the version can be routed and its selections apply.
func (v *Version) Validate() error {
	if v.Source == "" {
		return errors.New("version.source required")
	}
	if v.Language == "" {
		return errors.New("version.language required")
	}
	for i, s := range v.Selections {
		if s.Begin < 0 || s.Begin > s.End {
			return fmt.Errorf("version.selections[%d]: begin %d > end %d", i, s.Begin, s.End)
		}
	}
	return nil
}

// Validate checks the fields a sink needs to attribute a product.
func (p *Product) Validate() error {
	if p.Source == "" {
		return errors.New("product.source required")
	}
	if p.Product == "" {
		return errors.New("product.product required")
	}
	return nil
}

// SelectionText concatenates the selected ranges of the contents, clamped to
// the number of runes in the contents. It is empty when there are no
// selections.
func SelectionText(v *Version) string {
	if len(v.Selections) == 0 {
		return ""
	}
	runes := []rune(v.Contents)
	var text []rune
	for _, s := range v.Selections {
		begin, end := clamp(s.Begin, len(runes)), clamp(s.End, len(runes))
		if begin < end {
			text = append(text, runes[begin:end]...)
		}
	}
	return string(text)
}

func clamp(n, max int) int {
	if n < 0 {
		return 0
	}
	if n > max {
		return max
	}
	return n
}

// DecodeVersion parses and validates a version message.
func DecodeVersion(data []byte) (*Version, error) {
	var v Version
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("invalid Version: %w", err)
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return &v, nil
}

// DecodeProduct parses and validates a product message.
func DecodeProduct(data []byte) (*Product, error) {
	var p Product
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("invalid Product: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}
