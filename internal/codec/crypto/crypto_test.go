package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCodec(t *testing.T) *AEADHMACCodec {
	c, err := NewAESGCMHMACCodec(bytes.Repeat([]byte{1}, KeySize), []byte("mac-key"))
	require.NoError(t, err)
	return c
}

func TestNewAESGCMHMACCodec(t *testing.T) {
	_, err := NewAESGCMHMACCodec([]byte("short"), []byte("mac"))
	assert.Error(t, err)
	_, err = NewAESGCMHMACCodec(bytes.Repeat([]byte{1}, KeySize), nil)
	assert.Error(t, err)
}

func TestEncryptDecrypt(t *testing.T) {
	c := newCodec(t)
	plain := []byte("selection record")
	aad := []byte("header")

	packet, err := c.Encrypt(plain, aad)
	require.NoError(t, err)
	assert.NotContains(t, string(packet), string(plain))

	other, err := c.Encrypt(plain, aad)
	require.NoError(t, err)
	assert.NotEqual(t, packet, other, "nonce must differ")

	got, err := c.Decrypt(packet, aad)
	require.NoError(t, err)
	assert.Equal(t, plain, got)
}

func TestDecryptRejectsTampering(t *testing.T) {
	c := newCodec(t)
	packet, err := c.Encrypt([]byte("data"), []byte("aad"))
	require.NoError(t, err)

	_, err = c.Decrypt(packet, []byte("other"))
	assert.ErrorIs(t, err, ErrInvalidMAC)

	flipped := append([]byte(nil), packet...)
	flipped[len(flipped)/2] ^= 0xff
	_, err = c.Decrypt(flipped, []byte("aad"))
	assert.ErrorIs(t, err, ErrInvalidMAC)

	_, err = c.Decrypt(packet[:8], []byte("aad"))
	assert.ErrorIs(t, err, ErrPacketTooShort)
}

func TestNop(t *testing.T) {
	out, err := NopEncryptor{}.Encrypt([]byte("x"), nil)
	require.NoError(t, err)
	out, err = NopEncryptor{}.Decrypt(out, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), out)
}
