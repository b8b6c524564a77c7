// Package security provides validation, sanitization, and limits for the
// syncqueue package.
package security

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/tarafreight/syncqueue/pkg/core"
)

// Limits and configuration
const (
	// MaxTagLength is the maximum length for entity type and action tags
	MaxTagLength = 64

	// MaxPayloadSize is the maximum size in bytes for entry payloads (1MB)
	MaxPayloadSize = 1 << 20

	// MaxAttempts is the hard limit for replay attempts
	MaxAttempts = 100

	// MaxErrorMessageLength is the maximum length for stored error messages
	MaxErrorMessageLength = 4096

	// MaxDedupeKeyLength is the maximum length for dedupe keys
	MaxDedupeKeyLength = 64

	// MaxListLimit is the largest allowed page size for list requests
	MaxListLimit = 200

	// DefaultListLimit is the page size used when none is requested
	DefaultListLimit = 50
)

// validTag matches uppercase/lowercase alphanumeric, hyphens, underscores,
// and dots. Entity type and action tags share the same grammar
// (e.g. "SHIPMENT", "ACCEPT_ASSIGNMENT").
var validTag = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_\-\.]*$`)

// ValidateEntityType validates an entity type tag
func ValidateEntityType(tag string) error {
	if tag == "" {
		return core.ErrInvalidEntityType
	}
	if len(tag) > MaxTagLength {
		return core.ErrEntityTypeTooLong
	}
	if !validTag.MatchString(tag) {
		return core.ErrInvalidEntityType
	}
	return nil
}

// ValidateAction validates an action tag
func ValidateAction(tag string) error {
	if tag == "" {
		return core.ErrInvalidAction
	}
	if len(tag) > MaxTagLength {
		return core.ErrActionTooLong
	}
	if !validTag.MatchString(tag) {
		return core.ErrInvalidAction
	}
	return nil
}

// ValidateDedupeKey validates a dedupe key length
func ValidateDedupeKey(key string) error {
	if len(key) > MaxDedupeKeyLength {
		return core.ErrDedupeKeyTooLong
	}
	return nil
}

// SanitizeErrorMessage truncates and sanitizes error messages for storage
func SanitizeErrorMessage(msg string) string {
	if msg == "" {
		return ""
	}

	// Remove any null bytes or control characters (except newlines)
	var sanitized strings.Builder
	sanitized.Grow(len(msg))

	for _, r := range msg {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			sanitized.WriteRune(r)
		}
	}

	result := sanitized.String()

	// Truncate if too long
	if utf8.RuneCountInString(result) > MaxErrorMessageLength {
		runes := []rune(result)
		result = string(runes[:MaxErrorMessageLength-3]) + "..."
	}

	return result
}

// ClampListLimit ensures a list page size is within limits
func ClampListLimit(n int) int {
	if n < 1 {
		return DefaultListLimit
	}
	if n > MaxListLimit {
		return MaxListLimit
	}
	return n
}

// ClampAttempts ensures a max-attempts setting is within limits
func ClampAttempts(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxAttempts {
		return MaxAttempts
	}
	return n
}
