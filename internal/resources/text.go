package resources

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
)

// parseText reads one identifier per line. Blank lines and lines starting
// with # are skipped.
func parseText(data []byte, kind Kind) ([]record, error) {
	var records []record
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		records = append(records, fromString(line, kind))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read lines: %w", err)
	}
	return records, nil
}
