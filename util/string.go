package util

import "strings"

func BoolPtr(b bool) *bool {
	return &b
}

// Has0xPrefix reports whether s starts with 0x or 0X.
func Has0xPrefix(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

// Strip0x removes a leading 0x / 0X if present.
func Strip0x(s string) string {
	if Has0xPrefix(s) {
		return s[2:]
	}
	return s
}

// IsBlankOrNull treats an absent, empty or literal null JSON payload alike.
func IsBlankOrNull(raw []byte) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}
