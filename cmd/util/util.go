// Package util provides small helpers for the command-line layer.
package util

import "strings"

// WrapString wraps flag help texts so long descriptions stay readable in the
// terminal.
func WrapString(s string) string {
	const width = 80
	words := strings.Fields(s)
	if len(words) == 0 {
		return s
	}

	var sb strings.Builder
	lineLen := 0
	for i, word := range words {
		if i > 0 {
			if lineLen+1+len(word) > width {
				sb.WriteString("\n")
				lineLen = 0
			} else {
				sb.WriteString(" ")
				lineLen++
			}
		}
		sb.WriteString(word)
		lineLen += len(word)
	}
	return sb.String()
}
