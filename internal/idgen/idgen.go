// Package idgen provides short, URL-safe unique ID generation backed by nanoid.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes for the kinds of IDs eventify hands out.
const (
	ControllerPrefix = "ls-"  // list controllers, used as log labels
	RequestPrefix    = "req-" // X-Request-ID on outgoing API calls
	ExportPrefix     = "exp-" // export runs
)

// Alphabet defines the character set used for the random portion of the ID.
var Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters generated (excluding the prefix).
var Length = 10

// GenerateWithPrefix returns a new unique ID with the given prefix.
func GenerateWithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}

// MustWithPrefix is GenerateWithPrefix for callers that only need a label.
// If the random source fails it returns prefix followed by "unknown".
func MustWithPrefix(prefix string) string {
	id, err := GenerateWithPrefix(prefix)
	if err != nil {
		return prefix + "unknown"
	}
	return id
}
