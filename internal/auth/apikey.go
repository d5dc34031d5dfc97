package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// APIKeyPrefix префикс всех ключей API
	APIKeyPrefix = "okd_"

	apiKeyRandomBytes  = 24
	apiKeyDisplayChars = 8
)

// GenerateAPIKey okd_ и 48 hex символов
func GenerateAPIKey() (string, error) {
	buf := make([]byte, apiKeyRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate api key: %w", err)
	}
	return APIKeyPrefix + hex.EncodeToString(buf), nil
}

// HashAPIKey SHA-256 в hex, по нему ключ ищется в хранилище
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// DisplayPrefix первые 8 символов ключа для списка в кабинете
func DisplayPrefix(raw string) string {
	if len(raw) <= apiKeyDisplayChars {
		return raw
	}
	return raw[:apiKeyDisplayChars]
}

// LooksLikeAPIKey отличает ключ API от JWT в заголовке Bearer
func LooksLikeAPIKey(s string) bool {
	return strings.HasPrefix(s, APIKeyPrefix)
}
