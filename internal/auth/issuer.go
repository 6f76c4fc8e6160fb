package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// IDAlphabet is the set of symbols peer identifiers are drawn from. It has
// exactly 64 entries so one random byte masked to 6 bits selects a symbol
// without bias.
const IDAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_$"

// DefaultIDLength is the identifier length used when none is configured.
const DefaultIDLength = 16

const (
	ephemeralSecretBytes = 32
	macKeyBytes          = 32
	hkdfInfo             = "aero-webrtc-signal-relay peer key v1"
)

var ErrInvalidIDLength = errors.New("id length must be > 0")

// Issuer generates peer identifiers and derives their access keys.
//
// Keys are never stored: a key is always HMAC-SHA256(id) under a MAC key
// derived from the process secret, so verifying a credential only requires
// recomputing it. Changing the secret invalidates every outstanding key at
// once.
type Issuer struct {
	macKey    []byte
	ephemeral bool
	random    io.Reader
}

// NewIssuer builds an Issuer from secret. An empty secret makes the issuer
// generate a random one, which means credentials do not survive a restart.
func NewIssuer(secret string) (*Issuer, error) {
	return newIssuer([]byte(secret), rand.Reader)
}

func newIssuer(secret []byte, random io.Reader) (*Issuer, error) {
	ephemeral := false
	if len(secret) == 0 {
		secret = make([]byte, ephemeralSecretBytes)
		if _, err := io.ReadFull(random, secret); err != nil {
			return nil, fmt.Errorf("generate ephemeral secret: %w", err)
		}
		ephemeral = true
	}

	macKey := make([]byte, macKeyBytes)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(hkdfInfo)), macKey); err != nil {
		return nil, fmt.Errorf("derive mac key: %w", err)
	}

	return &Issuer{
		macKey:    macKey,
		ephemeral: ephemeral,
		random:    random,
	}, nil
}

// Ephemeral reports whether the secret was generated at startup rather than
// configured.
func (i *Issuer) Ephemeral() bool { return i.ephemeral }

// NewID returns a random identifier of the given length.
func (i *Issuer) NewID(length int) (string, error) {
	if length <= 0 {
		return "", ErrInvalidIDLength
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(i.random, buf); err != nil {
		return "", fmt.Errorf("read random id bytes: %w", err)
	}
	for n, b := range buf {
		buf[n] = IDAlphabet[b&63]
	}
	return string(buf), nil
}

// ValidID reports whether candidate has the shape accepted when re-creating a
// peer after a restart: exactly length characters from [a-zA-Z0-9].
//
// This is narrower than IDAlphabet. Identifiers containing '_' or '$' are
// issued normally but can not be recovered.
func ValidID(candidate string, length int) bool {
	if length <= 0 || len(candidate) != length {
		return false
	}
	for i := 0; i < len(candidate); i++ {
		c := candidate[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}

// Key returns the access key for id.
func (i *Issuer) Key(id string) string {
	return base64.RawURLEncoding.EncodeToString(i.sum(id))
}

// Verify checks key against the key derived for id in constant time.
func (i *Issuer) Verify(id, key string) error {
	if id == "" || key == "" {
		return ErrMissingCredentials
	}
	got, err := base64.RawURLEncoding.DecodeString(key)
	if err != nil || len(got) != sha256.Size {
		return ErrInvalidCredentials
	}
	if !hmac.Equal(got, i.sum(id)) {
		return ErrInvalidCredentials
	}
	return nil
}

func (i *Issuer) sum(id string) []byte {
	mac := hmac.New(sha256.New, i.macKey)
	_, _ = mac.Write([]byte(id))
	return mac.Sum(nil)
}
