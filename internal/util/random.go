// Package util provides utility functions for the VoiceBrain application.
package util

import (
	"math/rand/v2"
	"strings"
)

// GenerateRandomID generates a random ID with the specified prefix and hex length.
// The returned ID will be in the format: "{prefix}{hex_string}".
func GenerateRandomID(prefix string, hexLength int) string {
	return prefix + GenerateRandomHex(hexLength)
}

// GenerateRandomHex generates a random hexadecimal string of the specified length.
// Uses math/rand/v2; these IDs are identifiers, not secrets.
func GenerateRandomHex(length int) string {
	if length <= 0 {
		return ""
	}

	const hexChars = "0123456789abcdef"
	var builder strings.Builder
	builder.Grow(length)

	for i := 0; i < length; i++ {
		builder.WriteByte(hexChars[rand.IntN(16)])
	}

	return builder.String()
}

// GenerateMemoID generates a unique voice memo ID with "memo_" prefix.
func GenerateMemoID() string {
	return GenerateRandomID("memo_", 32)
}

// GenerateClassificationID generates a unique classification ID with "cls_" prefix.
func GenerateClassificationID() string {
	return GenerateRandomID("cls_", 32)
}

// GenerateActionID generates a unique action item ID with "act_" prefix.
func GenerateActionID() string {
	return GenerateRandomID("act_", 32)
}

// GenerateContextItemID generates a unique context item ID with "ctx_" prefix.
func GenerateContextItemID() string {
	return GenerateRandomID("ctx_", 32)
}
