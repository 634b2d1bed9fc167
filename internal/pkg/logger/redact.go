package logger

import (
	"regexp"
	"strings"
)

var addressRegex = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// RedactAddress masks a recipient address for safe logging.
// "jane.roe@example.com" → "ja***@example.com"
// Local parts of 2 characters or fewer are fully masked.
func RedactAddress(addr string) string {
	parts := strings.Split(addr, "@")
	if len(parts) != 2 {
		return "***@***"
	}
	local := parts[0]
	if len(local) > 2 {
		return local[:2] + "***@" + parts[1]
	}
	return "***@" + parts[1]
}

func redactValue(key, val string) string {
	key = strings.ToLower(key)
	if strings.Contains(key, "address") || strings.Contains(key, "recipient") || strings.Contains(key, "email") {
		return RedactAddress(val)
	}
	return addressRegex.ReplaceAllStringFunc(val, RedactAddress)
}
