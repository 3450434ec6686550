// Package credential encrypts remote API keys at rest.
package credential

import (
	"encoding/base64"
	"time"

	"github.com/fernet/fernet-go"
	"github.com/rotisserie/eris"
)

// Stored keys never age out; a negative ttl skips the token age check.
const noExpiry = -1 * time.Second

// ErrNoKey is returned when no encryption key is configured.
var ErrNoKey = eris.New("credential: encryption key not configured")

// Cipher encrypts and decrypts secrets with a single symmetric key. Ciphertext
// is the fernet token additionally encoded as URL-safe base64.
type Cipher struct {
	key *fernet.Key
}

// NewCipher parses a base64 fernet key. An empty key yields a Cipher whose
// operations all fail with ErrNoKey.
func NewCipher(encodedKey string) (*Cipher, error) {
	if encodedKey == "" {
		return &Cipher{}, nil
	}
	k, err := fernet.DecodeKey(encodedKey)
	if err != nil {
		return nil, eris.Wrap(err, "credential: decode key")
	}
	return &Cipher{key: k}, nil
}

// GenerateKey returns a fresh key in the encoding NewCipher accepts.
func GenerateKey() (string, error) {
	var k fernet.Key
	if err := k.Generate(); err != nil {
		return "", eris.Wrap(err, "credential: generate key")
	}
	return k.Encode(), nil
}

// Configured reports whether a key is loaded.
func (c *Cipher) Configured() bool {
	return c != nil && c.key != nil
}

// Encrypt returns the ciphertext of plaintext. Empty plaintext encrypts to
// the empty string. Without a key every call fails with ErrNoKey.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if !c.Configured() {
		return "", ErrNoKey
	}
	if plaintext == "" {
		return "", nil
	}
	tok, err := fernet.EncryptAndSign([]byte(plaintext), c.key)
	if err != nil {
		return "", eris.Wrap(err, "credential: encrypt")
	}
	return base64.URLEncoding.EncodeToString(tok), nil
}

// Decrypt reverses Encrypt. Any malformed, tampered or foreign ciphertext is
// reported as an error; the empty string decrypts to the empty string.
func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	if !c.Configured() {
		return "", ErrNoKey
	}
	if ciphertext == "" {
		return "", nil
	}
	tok, err := base64.URLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", eris.Wrap(err, "credential: decode ciphertext")
	}
	msg := fernet.VerifyAndDecrypt(tok, noExpiry, []*fernet.Key{c.key})
	if msg == nil {
		return "", eris.New("credential: invalid token")
	}
	return string(msg), nil
}

// Rotate re-encrypts ciphertext produced under old with c's key.
func (c *Cipher) Rotate(old *Cipher, ciphertext string) (string, error) {
	plain, err := old.Decrypt(ciphertext)
	if err != nil {
		return "", eris.Wrap(err, "credential: rotate")
	}
	return c.Encrypt(plain)
}
