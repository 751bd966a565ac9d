package pathutil

import "strings"

// HasDotSegments reports whether any path segment is "." or "..".
func HasDotSegments(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

// ValidKey reports whether key is a safe relative record key: slash
// separated, no leading or trailing slash, no empty or dot segments and no
// backslashes or NUL bytes.
func ValidKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") || strings.HasSuffix(key, "/") {
		return false
	}
	if strings.ContainsAny(key, "\\\x00") || strings.Contains(key, "//") {
		return false
	}
	return !HasDotSegments(key)
}
