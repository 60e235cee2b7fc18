package utils

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

var (
	ErrMalformedCiphertext = errors.New("malformed ciphertext")
	ErrBadPadding          = errors.New("invalid padding")
	ErrNotUTF8             = errors.New("plaintext is not valid UTF-8")
)

// Cipher encrypts credential tokens at rest with AES-256-CBC.
// Values are encoded as "<iv-hex>:<ciphertext-hex>".
type Cipher struct {
	block cipher.Block
}

// DeriveKey turns the application secret into a 32 byte key:
// SHA-256 over the bytes of UUIDv5(NameSpaceDNS, secret).
func DeriveKey(secret string) []byte {
	id := uuid.NewSHA1(uuid.NameSpaceDNS, []byte(secret))
	sum := sha256.Sum256(id[:])
	return sum[:]
}

func NewCipher(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, errors.New("empty secret")
	}
	block, err := aes.NewCipher(DeriveKey(secret))
	if err != nil {
		return nil, err
	}
	return &Cipher{block: block}, nil
}

func (c *Cipher) Encrypt(plaintext string) (string, error) {
	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(out, padded)

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(out), nil
}

func (c *Cipher) Decrypt(encoded string) (string, error) {
	ivHex, ctHex, ok := strings.Cut(encoded, ":")
	if !ok {
		return "", fmt.Errorf("%w: missing separator", ErrMalformedCiphertext)
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != aes.BlockSize {
		return "", fmt.Errorf("%w: bad iv", ErrMalformedCiphertext)
	}
	ct, err := hex.DecodeString(ctHex)
	if err != nil {
		return "", fmt.Errorf("%w: bad ciphertext encoding", ErrMalformedCiphertext)
	}
	if len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: bad block length", ErrMalformedCiphertext)
	}

	out := make([]byte, len(ct))
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(out, ct)

	plain, err := pkcs7Unpad(out, aes.BlockSize)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(plain) {
		return "", ErrNotUTF8
	}
	return string(plain), nil
}

// EncryptOptional keeps the empty string empty so absent tokens stay absent.
func (c *Cipher) EncryptOptional(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	return c.Encrypt(plaintext)
}

func (c *Cipher) DecryptOptional(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}
	return c.Decrypt(encoded)
}

func pkcs7Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 || len(b)%size != 0 {
		return nil, ErrBadPadding
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, ErrBadPadding
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, ErrBadPadding
		}
	}
	return b[:len(b)-n], nil
}
