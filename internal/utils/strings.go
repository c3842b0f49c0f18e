// Package utils holds small string and JSON helpers shared by the gateway.
package utils

import "unicode/utf8"

// MaskKey masks an API key for logs, keeping the first 8 and last 4 bytes.
func MaskKey(key string) string {
	if key == "" {
		return "(empty)"
	}
	if len(key) < 16 {
		return "****"
	}
	return key[:8] + "..." + key[len(key)-4:]
}

// MaskKeyShort is the compact form used in the init event.
func MaskKeyShort(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// TruncateRunes shortens s to max characters, appending "..." when cut.
func TruncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + "..."
}

// TruncateBytes returns the longest prefix of s that fits in max bytes
// without splitting a UTF-8 sequence.
func TruncateBytes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := 0
	for i := range s {
		if i > max {
			break
		}
		cut = i
	}
	return s[:cut]
}
