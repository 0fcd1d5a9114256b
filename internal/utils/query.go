// Package utils holds small parsing helpers shared by the HTTP handlers.
package utils

import (
	"strconv"
	"strings"
)

// AtoiDefault parses s as a base-10 int after trimming surrounding blanks.
// Empty or unparsable input yields def.
func AtoiDefault(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// Clamp bounds n to [lo, hi]. hi < lo is treated as no upper bound.
func Clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if hi >= lo && n > hi {
		return hi
	}
	return n
}

// BoundedInt parses s like AtoiDefault and clamps the result.
func BoundedInt(s string, def, lo, hi int) int {
	return Clamp(AtoiDefault(s, def), lo, hi)
}

// NormalizeEmail lowercases and trims an address for lookups.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
