package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mitchellh/go-homedir"
)

// Error reports a configuration file that could not be used. The broker
// must not start when Load returns one.
type Error struct {
	Path string
	Op   string // "open", "read" or "parse"
	Err  error
}

func (e *Error) Error() string {
	switch e.Op {
	case "open":
		return fmt.Sprintf("cannot read monto configuration file %s: %v", e.Path, e.Err)
	case "read":
		return fmt.Sprintf("monto configuration file %s changed during reading: %v", e.Path, e.Err)
	default:
		return fmt.Sprintf("error during json parsing of monto configuration %s: %v", e.Path, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// DefaultPath returns DefaultFile with the home directory expanded.
func DefaultPath() (string, error) {
	return homedir.Expand(DefaultFile)
}

// Load reads the JSON file at path on top of Default.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &Error{Path: path, Op: "open", Err: err}
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, &Error{Path: path, Op: "read", Err: err}
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, &Error{Path: path, Op: "parse", Err: err}
	}

	cfg := Default()
	cfg.overlay(&fc)
	return cfg, nil
}

// LoadAndValidate loads the file and validates the result.
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}
