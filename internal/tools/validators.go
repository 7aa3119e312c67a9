package tools

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/QuickMythril/qortal-mcp-server/internal/backend"
)

// Qortal addresses are 34 Base58 characters starting with "Q".
var addressRe = regexp.MustCompile(`^Q[1-9A-HJ-NP-Za-km-z]{33}$`)

const (
	nameMinLength = 3
	nameMaxLength = 40
)

var (
	nameRe   = regexp.MustCompile(`^[A-Za-z0-9$][A-Za-z0-9$._\- ]{1,38}[A-Za-z0-9$]$`)
	base58Re = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)
)

const truncatedSuffix = "... (truncated)"

// IsValidAddress checks the format of a Qortal address without calling a node.
func IsValidAddress(address string) bool {
	address = strings.TrimSpace(address)
	return address != "" && addressRe.MatchString(address)
}

// IsValidName applies the conservative registered-name rules.
func IsValidName(name string) bool {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n < nameMinLength || n > nameMaxLength {
		return false
	}
	return nameRe.MatchString(name)
}

// IsBase58 reports whether s is Base58 with a length in [minLen, maxLen].
// A maxLen of zero means unbounded.
func IsBase58(s string, minLen, maxLen int) bool {
	if len(s) < minLen || (maxLen > 0 && len(s) > maxLen) {
		return false
	}
	return base58Re.MatchString(s)
}

// ClampLimit bounds a caller-supplied limit or offset. Missing, malformed or
// negative values yield def; anything above max is capped.
func ClampLimit(v any, def, max int) int {
	if v == nil {
		return def
	}
	n, ok := backend.AsInt64(v)
	if !ok || n < 0 {
		return def
	}
	if n > int64(max) {
		return max
	}
	return int(n)
}

// truncate shortens s to at most max runes, marking the cut.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	keep := max - len(truncatedSuffix)
	if keep < 0 {
		keep = 0
	}
	return string(r[:keep]) + truncatedSuffix
}

// truncateAny truncates string values and maps everything else to nil.
func truncateAny(v any, max int) any {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return truncate(s, max)
}
