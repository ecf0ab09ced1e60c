// Package crypto seals client payloads with NaCl box so they stay opaque to
// the broker and to any subscriber without the recipient key.
package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
)

const (
	PublicKeySize  = 32
	PrivateKeySize = 32
	NonceSize      = 24
)

// ErrOpen is returned when an envelope cannot be authenticated.
var ErrOpen = errors.New("crypto: envelope cannot be opened")

// KeyPair holds a Curve25519 key pair
type KeyPair struct {
	Public  *[PublicKeySize]byte
	Private *[PrivateKeySize]byte
}

// GenerateKeyPair creates a new X25519 key pair
func GenerateKeyPair() (*KeyPair, error) {
	public, private, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &KeyPair{Public: public, Private: private}, nil
}

// KeyPairFromPrivate derives the public half of private.
func KeyPairFromPrivate(private *[PrivateKeySize]byte) (*KeyPair, error) {
	pub, err := curve25519.X25519(private[:], curve25519.Basepoint)
	if err != nil {
		return nil, err
	}
	kp := &KeyPair{Public: new([PublicKeySize]byte), Private: new([PrivateKeySize]byte)}
	copy(kp.Public[:], pub)
	copy(kp.Private[:], private[:])
	return kp, nil
}

// LoadOrCreateKeyPair reads a hex private key from path, creating the file
// with a fresh key when it does not exist.
func LoadOrCreateKeyPair(path string) (*KeyPair, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		kp, err := GenerateKeyPair()
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, []byte(hex.EncodeToString(kp.Private[:])+"\n"), 0600); err != nil {
			return nil, fmt.Errorf("write key file: %w", err)
		}
		return kp, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	private, err := parseKey(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("key file %s: %w", path, err)
	}
	return KeyPairFromPrivate(private)
}

// ParsePublicKey decodes a hex public key.
func ParsePublicKey(s string) (*[PublicKeySize]byte, error) {
	return parseKey(s)
}

func parseKey(s string) (*[32]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid key hex: %w", err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("invalid key length %d, need 32 bytes", len(b))
	}
	k := new([32]byte)
	copy(k[:], b)
	return k, nil
}

// Seal encrypts plaintext for the recipient. Overhead is box.Overhead bytes.
func Seal(plaintext []byte, recipient *[PublicKeySize]byte, sender *[PrivateKeySize]byte) ([]byte, error) {
	var nonce [NonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}
	return box.Seal(nonce[:], plaintext, &nonce, recipient, sender), nil
}

// Open decrypts ciphertext from the sender. The nonce is prepended.
func Open(ciphertext []byte, sender *[PublicKeySize]byte, recipient *[PrivateKeySize]byte) ([]byte, bool) {
	if len(ciphertext) < NonceSize+box.Overhead {
		return nil, false
	}
	var nonce [NonceSize]byte
	copy(nonce[:], ciphertext[:NonceSize])
	return box.Open(nil, ciphertext[NonceSize:], &nonce, sender, recipient)
}

// SealEnvelope seals plaintext for recipient and prefixes the sender's
// public key so the recipient can open it without prior key exchange.
func SealEnvelope(plaintext []byte, recipient *[PublicKeySize]byte, sender *KeyPair) ([]byte, error) {
	sealed, err := Seal(plaintext, recipient, sender.Private)
	if err != nil {
		return nil, err
	}
	return append(append(make([]byte, 0, PublicKeySize+len(sealed)), sender.Public[:]...), sealed...), nil
}

// OpenEnvelope opens an envelope addressed to kp and returns the plaintext
// and the sender's public key.
func OpenEnvelope(envelope []byte, kp *KeyPair) ([]byte, *[PublicKeySize]byte, error) {
	if len(envelope) < PublicKeySize {
		return nil, nil, ErrOpen
	}
	sender := new([PublicKeySize]byte)
	copy(sender[:], envelope[:PublicKeySize])
	plain, ok := Open(envelope[PublicKeySize:], sender, kp.Private)
	if !ok {
		return nil, nil, ErrOpen
	}
	return plain, sender, nil
}

// KeyID returns first 8 bytes of public key as a short identifier
func KeyID(pub *[PublicKeySize]byte) []byte {
	return pub[:8]
}
