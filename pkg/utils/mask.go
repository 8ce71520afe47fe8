package utils

// MaskSecret hides all but the first and last two characters of a secret so
// it can be referenced in logs without being disclosed.
func MaskSecret(s string) string {
	if len(s) <= 6 {
		return "***"
	}
	return s[:2] + "***" + s[len(s)-2:]
}
