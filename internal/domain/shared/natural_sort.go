// Package shared holds the index structures and ordering helpers used by the
// category domain and the cache.
package shared

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// NaturalCompare orders strings the way people read them: digit runs compare
// by numeric value, other runes compare case-insensitively. Strings that are
// equal under those rules fall back to a byte-wise comparison so the order is
// total.
func NaturalCompare(a, b string) int {
	ia, ib := 0, 0
	for ia < len(a) && ib < len(b) {
		ra, wa := utf8.DecodeRuneInString(a[ia:])
		rb, wb := utf8.DecodeRuneInString(b[ib:])

		if isDigit(ra) && isDigit(rb) {
			ja := digitRunEnd(a, ia)
			jb := digitRunEnd(b, ib)
			if c := compareDigitRuns(a[ia:ja], b[ib:jb]); c != 0 {
				return c
			}
			ia, ib = ja, jb
			continue
		}

		la, lb := unicode.ToLower(ra), unicode.ToLower(rb)
		if la != lb {
			if la < lb {
				return -1
			}
			return 1
		}
		ia += wa
		ib += wb
	}

	switch {
	case ia < len(a):
		return 1
	case ib < len(b):
		return -1
	}
	return strings.Compare(a, b)
}

// NaturalLess reports whether a sorts before b in natural order.
func NaturalLess(a, b string) bool {
	return NaturalCompare(a, b) < 0
}

// SortNatural sorts items by the natural order of the key returned by name.
func SortNatural[T any](items []T, name func(T) string) {
	sort.SliceStable(items, func(i, j int) bool {
		return NaturalLess(name(items[i]), name(items[j]))
	})
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func digitRunEnd(s string, start int) int {
	end := start
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	return end
}

// compareDigitRuns compares two ASCII digit runs by value without parsing,
// so arbitrarily long runs cannot overflow. Leading zeros only break ties.
func compareDigitRuns(a, b string) int {
	ta := strings.TrimLeft(a, "0")
	tb := strings.TrimLeft(b, "0")
	if len(ta) != len(tb) {
		if len(ta) < len(tb) {
			return -1
		}
		return 1
	}
	if c := strings.Compare(ta, tb); c != 0 {
		return c
	}
	return 0
}
