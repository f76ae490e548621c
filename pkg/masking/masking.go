// Package masking redacts credentials before they reach logs.
package masking

import "strings"

const maskToken = "****"

// MaskSecret redacts a secret while keeping its key-type prefix and a short suffix.
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}

	prefix, remainder := splitPrefix(trimmed)
	if len(remainder) <= 8 {
		return prefix + maskToken
	}

	return prefix + maskToken + remainder[len(remainder)-4:]
}

// MaskURL hides userinfo and query values of a URL while keeping scheme, host and path.
func MaskURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if at := strings.Index(raw, "@"); at != -1 {
		if scheme := strings.Index(raw, "://"); scheme != -1 && scheme < at {
			raw = raw[:scheme+3] + maskToken + raw[at:]
		}
	}
	if q := strings.Index(raw, "?"); q != -1 {
		raw = raw[:q+1] + maskToken
	}
	return raw
}

func splitPrefix(value string) (string, string) {
	lastUnderscore := strings.LastIndex(value, "_")
	if lastUnderscore == -1 || lastUnderscore == len(value)-1 {
		return "", value
	}
	return value[:lastUnderscore+1], value[lastUnderscore+1:]
}
