package acoustic

import "strings"

// Context names are written HTK style: "l-c+r", "l-c", "c+r" or "c".

// WordBoundary is the context symbol used when a neighbour is unknown.
const WordBoundary = "#"

// MakeTriphone constructs a logical name from its components.
// Empty or boundary contexts are omitted, so ("", "a", "k") gives "a+k".
func MakeTriphone(left, center, right string) string {
	var b strings.Builder
	if left != "" && left != WordBoundary {
		b.WriteString(left)
		b.WriteByte('-')
	}
	b.WriteString(center)
	if right != "" && right != WordBoundary {
		b.WriteByte('+')
		b.WriteString(right)
	}
	return b.String()
}

// SplitName splits a logical name into left context, center and right context.
// For "i-k+u" it returns ("i", "k", "u"); for "k" it returns ("", "k", "").
func SplitName(name string) (left, center, right string) {
	center = name
	if i := strings.IndexByte(center, '-'); i >= 0 {
		left = center[:i]
		center = center[i+1:]
	}
	if i := strings.LastIndexByte(center, '+'); i >= 0 {
		right = center[i+1:]
		center = center[:i]
	}
	return left, center, right
}

// CenterPhone extracts the base phone of a logical name.
func CenterPhone(name string) string {
	_, c, _ := SplitName(name)
	return c
}

// WordToTriphones converts a word's phone sequence to word-internal logical
// names. Edge positions leave the unknown side empty:
// [i, k, u] → [i+k, i-k+u, k-u]; [a] → [a].
func WordToTriphones(phones []string) []string {
	n := len(phones)
	if n == 0 {
		return nil
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		var left, right string
		if i > 0 {
			left = phones[i-1]
		}
		if i < n-1 {
			right = phones[i+1]
		}
		out[i] = MakeTriphone(left, phones[i], right)
	}
	return out
}
