package crypto

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	source, err := GenerateKeyPair()
	require.NoError(t, err)
	server, err := GenerateKeyPair()
	require.NoError(t, err)

	env, err := SealEnvelope([]byte(`{"source":"a"}`), server.Public, source)
	require.NoError(t, err)
	assert.Equal(t, source.Public[:], env[:PublicKeySize])

	plain, sender, err := OpenEnvelope(env, server)
	require.NoError(t, err)
	assert.Equal(t, `{"source":"a"}`, string(plain))
	assert.Equal(t, source.Public, sender)
}

func TestOpenEnvelopeWrongRecipient(t *testing.T) {
	source, _ := GenerateKeyPair()
	server, _ := GenerateKeyPair()
	other, _ := GenerateKeyPair()

	env, err := SealEnvelope([]byte("secret"), server.Public, source)
	require.NoError(t, err)

	_, _, err = OpenEnvelope(env, other)
	assert.ErrorIs(t, err, ErrOpen)

	_, _, err = OpenEnvelope(env[:10], server)
	assert.ErrorIs(t, err, ErrOpen)

	env[len(env)-1] ^= 0xff
	_, _, err = OpenEnvelope(env, server)
	assert.ErrorIs(t, err, ErrOpen)
}

func TestLoadOrCreateKeyPair(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.key")

	created, err := LoadOrCreateKeyPair(path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadOrCreateKeyPair(path)
	require.NoError(t, err)
	assert.Equal(t, created.Public, loaded.Public)
	assert.Equal(t, created.Private, loaded.Private)
}

func TestLoadKeyPairRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.key")
	require.NoError(t, os.WriteFile(path, []byte("not hex"), 0600))

	_, err := LoadOrCreateKeyPair(path)
	assert.Error(t, err)
}

func TestParsePublicKey(t *testing.T) {
	kp, _ := GenerateKeyPair()

	pub, err := ParsePublicKey(hex.EncodeToString(kp.Public[:]))
	require.NoError(t, err)
	assert.Equal(t, kp.Public, pub)

	_, err = ParsePublicKey("abcd")
	assert.EqualError(t, err, "invalid key length 2, need 32 bytes")
}
