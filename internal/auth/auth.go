package auth

import (
	"errors"
	"net/http"
	"strings"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMissingCredentials = errors.New("missing credentials")
)

// Verifier checks a single opaque credential.
type Verifier interface {
	Verify(credential string) error
}

// CredentialFromRequest extracts an operator credential from the request.
//
// Sources, in order: X-API-Key header, Authorization header ("ApiKey <k>" or
// "Bearer <k>"), apiKey query parameter.
func CredentialFromRequest(r *http.Request) (string, error) {
	if v := strings.TrimSpace(r.Header.Get("X-API-Key")); v != "" {
		return v, nil
	}
	if v := strings.TrimSpace(r.Header.Get("Authorization")); v != "" {
		scheme, rest, ok := strings.Cut(v, " ")
		if ok {
			rest = strings.TrimSpace(rest)
			if rest != "" && (strings.EqualFold(scheme, "apikey") || strings.EqualFold(scheme, "bearer")) {
				return rest, nil
			}
		}
	}
	if v := strings.TrimSpace(r.URL.Query().Get("apiKey")); v != "" {
		return v, nil
	}
	return "", ErrMissingCredentials
}

// IsUnauthorized reports whether err should be surfaced as 401.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) || errors.Is(err, ErrMissingCredentials)
}
