package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-bulkedit/core"
)

const (
	versionSeparator = "|"
	partSeparator    = ":"
	legacyVersion    = 1
)

type Option func(*CredentialCodec)

// WithRotationWindow limits when a key version may be used.
func WithRotationWindow(version int, window KeyRotationWindow) Option {
	return func(codec *CredentialCodec) {
		if version > 0 {
			codec.windows[version] = window
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(codec *CredentialCodec) {
		if now != nil {
			codec.now = now
		}
	}
}

func WithRandom(reader io.Reader) Option {
	return func(codec *CredentialCodec) {
		if reader != nil {
			codec.random = reader
		}
	}
}

// CredentialCodec encrypts shop access tokens with AES-256-CBC. Blobs have
// the form "<version>|<iv base64>:<ciphertext base64>"; blobs without a
// version prefix are version 1.
type CredentialCodec struct {
	ring    KeyRing
	windows map[int]KeyRotationWindow
	now     func() time.Time
	random  io.Reader
}

func NewCredentialCodec(ring KeyRing, opts ...Option) *CredentialCodec {
	copied := make(KeyRing, len(ring))
	for version, secret := range ring {
		copied[version] = secret
	}
	codec := &CredentialCodec{
		ring:    copied,
		windows: map[int]KeyRotationWindow{},
		now:     time.Now,
		random:  rand.Reader,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(codec)
	}
	return codec
}

func (c *CredentialCodec) Encrypt(plain string, keyVersion int) (string, error) {
	if c == nil {
		return "", fmt.Errorf("security: credential codec is nil")
	}
	if plain == "" {
		return "", fmt.Errorf("security: plaintext is required")
	}
	if keyVersion <= 0 {
		return "", fmt.Errorf("security: key version must be positive")
	}
	block, err := c.cipherFor(keyVersion)
	if err != nil {
		return "", err
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(c.random, iv); err != nil {
		return "", fmt.Errorf("security: iv generation failed: %w", err)
	}
	padded := pkcs7Pad([]byte(plain), aes.BlockSize)
	encrypted := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(encrypted, padded)

	return strconv.Itoa(keyVersion) + versionSeparator +
		base64.StdEncoding.EncodeToString(iv) + partSeparator +
		base64.StdEncoding.EncodeToString(encrypted), nil
}

func (c *CredentialCodec) Decrypt(blob string) (string, int, error) {
	if c == nil {
		return "", 0, fmt.Errorf("security: credential codec is nil")
	}
	version, ivPart, dataPart, err := splitBlob(blob)
	if err != nil {
		return "", 0, err
	}
	block, err := c.cipherFor(version)
	if err != nil {
		return "", 0, err
	}

	iv, err := base64.StdEncoding.DecodeString(ivPart)
	if err != nil || len(iv) != aes.BlockSize {
		return "", 0, malformedBlobError("invalid iv")
	}
	encrypted, err := base64.StdEncoding.DecodeString(dataPart)
	if err != nil {
		return "", 0, malformedBlobError("invalid ciphertext encoding")
	}
	if len(encrypted) == 0 || len(encrypted)%aes.BlockSize != 0 {
		return "", 0, malformedBlobError("ciphertext is not a multiple of the block size")
	}
	decrypted := make([]byte, len(encrypted))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(decrypted, encrypted)
	plain, err := pkcs7Unpad(decrypted, aes.BlockSize)
	if err != nil {
		return "", 0, malformedBlobError("bad padding")
	}
	return string(plain), version, nil
}

// BlobVersion reports the key version a blob declares without decrypting it.
func BlobVersion(blob string) (int, error) {
	version, _, _, err := splitBlob(blob)
	return version, err
}

func (c *CredentialCodec) cipherFor(version int) (cipher.Block, error) {
	secret, ok := c.ring.Secret(version)
	if !ok {
		return nil, missingKeyError(version)
	}
	if window, ok := c.windows[version]; ok && !window.Allows(c.now()) {
		return nil, keyWindowError(version)
	}
	block, err := aes.NewCipher(deriveKey(secret))
	if err != nil {
		return nil, fmt.Errorf("security: create cipher: %w", err)
	}
	return block, nil
}

func splitBlob(blob string) (int, string, string, error) {
	blob = strings.TrimSpace(blob)
	if blob == "" {
		return 0, "", "", malformedBlobError("empty blob")
	}
	version := legacyVersion
	payload := blob
	if prefix, rest, ok := strings.Cut(blob, versionSeparator); ok {
		payload = rest
		// an unreadable version prefix falls back to the legacy key.
		if parsed, err := strconv.Atoi(strings.TrimSpace(prefix)); err == nil && parsed > 0 {
			version = parsed
		}
	}
	ivPart, dataPart, ok := strings.Cut(payload, partSeparator)
	if !ok || ivPart == "" || dataPart == "" {
		return 0, "", "", malformedBlobError("expected iv:ciphertext")
	}
	return version, ivPart, dataPart, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(padding)}, padding)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("security: invalid padded length")
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize || padding > len(data) {
		return nil, fmt.Errorf("security: invalid padding")
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, fmt.Errorf("security: invalid padding")
		}
	}
	return data[:len(data)-padding], nil
}

var _ core.CredentialCodec = (*CredentialCodec)(nil)
