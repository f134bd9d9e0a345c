package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
)

const (
	DefaultTokenLength = 32 // 256 bits
)

// TokenPair couples the client-facing secret with the digest that actually
// gets persisted.
type TokenPair struct {
	Token string // value returned to client
	Hash  string // value in storage
}

// GenerateToken draws byteLength random bytes from crypto/rand and encodes
// them in the URL-safe base64 alphabet. There is no fallback source: when
// the CSPRNG fails, generation fails.
func GenerateToken(byteLength int) (string, error) {
	if byteLength <= 0 {
		byteLength = DefaultTokenLength
	}

	bytes := make([]byte, byteLength)

	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("secure random source unavailable: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

func GenerateHashedToken(byteLength int) (*TokenPair, error) {
	token, err := GenerateToken(byteLength)
	if err != nil {
		return nil, err
	}

	hashedToken := HashToken(token)

	return &TokenPair{
		Token: token,
		Hash:  hashedToken,
	}, nil
}

func VerifyToken(token, storedHash string) (bool, error) {
	if token == "" || storedHash == "" {
		return false, errors.New("token and hash cannot be empty")
	}

	tokenHash := HashToken(token)

	// Constant-time comparison to prevent timing attacks
	return subtle.ConstantTimeCompare([]byte(tokenHash), []byte(storedHash)) == 1, nil
}

func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
