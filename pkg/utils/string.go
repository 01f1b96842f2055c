package utils

import (
	"bufio"
	"io"
	"strings"
)

// TruncateRunes shortens s to at most limit runes.
func TruncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}

	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}

	return string(runes[:limit])
}

// ReadListLines reads one entry per line, skipping blank lines and lines starting with '#'.
// Entries are trimmed of surrounding whitespace.
func ReadListLines(r io.Reader) ([]string, error) {
	var result []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		result = append(result, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
