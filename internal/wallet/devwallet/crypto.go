package devwallet

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	viewKeyLen       = 32
	ciphertextPrefix = "ciphertext1"
)

var b64 = base64.RawURLEncoding

func randBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// deriveViewKey derives the record view key from the account seed via HKDF-SHA256.
func deriveViewKey(seed []byte) ([]byte, error) {
	r := hkdf.New(sha256.New, seed, nil, []byte("privcaster/view-key"))
	key := make([]byte, viewKeyLen)
	_, err := r.Read(key)
	return key, err
}

// seal encrypts plaintext with XChaCha20-Poly1305, random nonce, AAD = aad.
// Output is nonce||ciphertext.
func seal(key, aad, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce, err := randBytes(chacha20poly1305.NonceSizeX)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, aad), nil
}

// open reverses seal.
func open(key, aad, blob []byte) ([]byte, error) {
	if len(blob) < chacha20poly1305.NonceSizeX {
		return nil, errors.New("ciphertext too short")
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce := blob[:chacha20poly1305.NonceSizeX]
	return aead.Open(nil, nonce, blob[chacha20poly1305.NonceSizeX:], aad)
}

func encodeCiphertext(blob []byte) string { return ciphertextPrefix + b64.EncodeToString(blob) }

func decodeCiphertext(s string) ([]byte, error) {
	if !strings.HasPrefix(s, ciphertextPrefix) {
		return nil, errors.New("not a ciphertext")
	}
	return b64.DecodeString(strings.TrimPrefix(s, ciphertextPrefix))
}
