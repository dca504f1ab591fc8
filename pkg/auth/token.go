package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	// TokenPrefix marks Gazette session tokens
	TokenPrefix = "gz_"
	// tokenBytes of randomness back each token
	tokenBytes = 32
	// displayChars of the encoded body are kept in the display prefix
	displayChars = 8
)

// ErrMalformedToken is returned for strings that cannot be session tokens
var ErrMalformedToken = errors.New("malformed session token")

// SessionToken is a freshly minted bearer token. Value goes to the client
// exactly once; only Hash is stored.
type SessionToken struct {
	Value  string
	Hash   string
	Prefix string
}

// NewSessionToken mints gz_<base64url(32 random bytes)>
func NewSessionToken() (SessionToken, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return SessionToken{}, fmt.Errorf("failed to read random bytes: %w", err)
	}
	value := TokenPrefix + base64.RawURLEncoding.EncodeToString(buf)
	return SessionToken{
		Value:  value,
		Hash:   HashToken(value),
		Prefix: value[:len(TokenPrefix)+displayChars],
	}, nil
}

// HashToken is the store key for a token value
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// CheckTokenFormat rejects values that could never have come from
// NewSessionToken, so lookups can skip the store.
func CheckTokenFormat(value string) error {
	body, ok := strings.CutPrefix(value, TokenPrefix)
	if !ok || body == "" {
		return ErrMalformedToken
	}
	raw, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil || len(raw) != tokenBytes {
		return ErrMalformedToken
	}
	return nil
}
