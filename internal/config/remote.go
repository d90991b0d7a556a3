package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/proapi/proapi/pkg/api"
)

var remoteClient = &http.Client{Timeout: 15 * time.Second}

// FetchRemote downloads the manifest from url. When secret is non-empty the
// body is treated as base64-encoded AES-GCM ciphertext and decrypted with a
// key derived from the secret.
func FetchRemote(url, secret string) ([]byte, error) {
	resp, err := remoteClient.Get(url)
	if err != nil {
		return nil, api.ConfigError("unable to fetch remote manifest", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, api.ConfigError(fmt.Sprintf("remote manifest returned status %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, api.ConfigError("unable to read remote manifest", err)
	}

	if secret == "" {
		return body, nil
	}
	plain, err := Decrypt(body, secret)
	if err != nil {
		return nil, api.ConfigError("unable to decrypt remote manifest", err)
	}
	return plain, nil
}

// Decrypt reverses Encrypt: base64 decode, split the nonce prefix, open the
// AES-GCM sealed box.
func Decrypt(encoded []byte, secret string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(string(encoded))
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}

	gcm, err := newGCM(secret)
	if err != nil {
		return nil, err
	}
	if len(raw) < gcm.NonceSize() {
		return nil, fmt.Errorf("ciphertext shorter than nonce")
	}

	nonce, sealed := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("open ciphertext: %w", err)
	}
	return plain, nil
}

// Encrypt seals a manifest for remote hosting. The output is
// base64(nonce || ciphertext).
func Encrypt(plain []byte, secret string) ([]byte, error) {
	gcm, err := newGCM(secret)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	sealed := gcm.Seal(nonce, nonce, plain, nil)
	out := make([]byte, base64.StdEncoding.EncodedLen(len(sealed)))
	base64.StdEncoding.Encode(out, sealed)
	return out, nil
}

func newGCM(secret string) (cipher.AEAD, error) {
	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
