package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"github.com/cockroachdb/errors"
)

var (
	// ErrPacketTooShort 表示报文长度不足以容纳 nonce 与 MAC。
	ErrPacketTooShort = errors.New("crypto: packet too short")

	// ErrInvalidMAC 表示 HMAC 校验失败。
	ErrInvalidMAC = errors.New("crypto: invalid mac")
)

// KeySize 是 AES-256 密钥长度。
const KeySize = 32

// AEADHMACCodec 使用 AES-256-GCM 加密，并对 nonce、密文与 aad 再做一次 HMAC-SHA256 签名。
//
// 报文格式：nonce || ciphertext || mac
type AEADHMACCodec struct {
	aead    cipher.AEAD
	hmacKey []byte
}

var _ Encryptor = (*AEADHMACCodec)(nil)

// NewAESGCMHMACCodec 创建 AEADHMACCodec。encKey 必须为 32 字节，macKey 不能为空。
func NewAESGCMHMACCodec(encKey, macKey []byte) (*AEADHMACCodec, error) {
	if len(encKey) != KeySize {
		return nil, errors.Newf("crypto: encKey must be %d bytes, got %d", KeySize, len(encKey))
	}
	if len(macKey) == 0 {
		return nil, errors.New("crypto: macKey must not be empty")
	}
	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, errors.Wrap(err, "crypto: new cipher")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "crypto: new gcm")
	}
	return &AEADHMACCodec{
		aead:    aead,
		hmacKey: append([]byte(nil), macKey...),
	}, nil
}

func (c *AEADHMACCodec) mac(nonce, ciphertext, aad []byte) []byte {
	m := hmac.New(sha256.New, c.hmacKey)
	_, _ = m.Write(nonce)
	_, _ = m.Write(ciphertext)
	_, _ = m.Write(aad)
	return m.Sum(nil)
}

func (c *AEADHMACCodec) Encrypt(plaintext, aad []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, errors.Wrap(err, "crypto: read nonce")
	}
	ciphertext := c.aead.Seal(nil, nonce, plaintext, aad)
	mac := c.mac(nonce, ciphertext, aad)

	packet := make([]byte, 0, len(nonce)+len(ciphertext)+len(mac))
	packet = append(packet, nonce...)
	packet = append(packet, ciphertext...)
	return append(packet, mac...), nil
}

func (c *AEADHMACCodec) Decrypt(packet, aad []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	if len(packet) < nonceSize+sha256.Size {
		return nil, ErrPacketTooShort
	}
	nonce := packet[:nonceSize]
	macOffset := len(packet) - sha256.Size
	ciphertext := packet[nonceSize:macOffset]

	if !hmac.Equal(c.mac(nonce, ciphertext, aad), packet[macOffset:]) {
		return nil, ErrInvalidMAC
	}
	plain, err := c.aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, errors.Wrap(err, "crypto: open")
	}
	return plain, nil
}
