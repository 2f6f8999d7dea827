package util

import (
	"sort"
	"strings"
)

// Slugify - Lowercase the text and collapse every run of characters other than ASCII letters and digits into one underscore.
func Slugify(text string) string {
	var builder strings.Builder
	pendingSeparator := false
	for _, char := range strings.ToLower(text) {
		if (char >= 'a' && char <= 'z') || (char >= '0' && char <= '9') {
			if pendingSeparator && builder.Len() > 0 {
				builder.WriteByte('_')
			}
			pendingSeparator = false
			builder.WriteRune(char)
			continue
		}
		pendingSeparator = true
	}
	return builder.String()
}

// SortedStrings - Sort the slice in place and return it.
func SortedStrings(values []string) []string {
	sort.Strings(values)
	return values
}
