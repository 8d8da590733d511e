// Package util holds small configuration helpers shared across TicketPipe
// components.
package util

import (
	"log/slog"
	"os"
	"strings"
)

// ParseBoolEnv reads a boolean environment variable, falling back to
// defaultValue when the variable is unset or unparseable. Accepted forms:
// true/1/yes/on and false/0/no/off, case-insensitive.
func ParseBoolEnv(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		slog.Warn("ParseBoolEnv unrecognized value, using default", "key", key, "value", val, "default", defaultValue)
		return defaultValue
	}
}
