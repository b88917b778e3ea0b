package util

import (
	"strings"
)

// SplitLinks turns one-link-per-line input into a slice of candidate links:
// whitespace trimmed, empty lines dropped, duplicates kept.
func SplitLinks(text string) []string {
	var links []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			links = append(links, line)
		}
	}
	return links
}
