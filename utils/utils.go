package utils

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// GetEnv returns the value of an environment variable, or a fallback
// when the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

// CreateFolder creates a directory (and any parents) if it doesn't exist.
func CreateFolder(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

// GenerateUniqueID returns a random identifier suitable for file names
// and store keys.
func GenerateUniqueID() string {
	return uuid.NewString()
}
