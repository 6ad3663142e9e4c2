package utils

import (
	"strings"

	"github.com/google/uuid"
)

func GenerateID() string {
	return uuid.NewString()
}

// GenerateToken returns an unguessable redemption token.
func GenerateToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
