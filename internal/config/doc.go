// Package config loads the broker's endpoint addresses from the JSON file
// shared by the broker and its clients (by default ~/.monto).
//
// Every field starts from a compiled-in default and is overridden only by the
// keys present in the file, so a loaded Config is always complete.
package config
