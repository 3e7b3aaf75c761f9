package env

import (
	"os"
	"strings"
)

// Get reads key from the process environment. Unset or blank values yield fallback.
func Get(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}
