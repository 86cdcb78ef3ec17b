package resources

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
)

// parseCSV reads a file whose first row is a header naming the identifier
// column and, optionally, a status column.
func parseCSV(data []byte, kind Kind) ([]record, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read CSV: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("CSV file must have at least one header row and one data row")
	}

	header := rows[0]
	if !hasIDColumn(header, kind) {
		return nil, fmt.Errorf("CSV header has no identifier column (want one of %s)", strings.Join(idKeys(kind), ", "))
	}

	records := make([]record, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) != len(header) {
			return nil, fmt.Errorf("row %d has %d fields, expected %d", i+2, len(row), len(header))
		}
		fields := make(map[string]interface{}, len(header))
		for j, field := range header {
			fields[field] = row[j]
		}
		records = append(records, fromFields(fields, kind))
	}
	return records, nil
}

func hasIDColumn(header []string, kind Kind) bool {
	for _, field := range header {
		for _, key := range idKeys(kind) {
			if strings.EqualFold(strings.TrimSpace(field), key) {
				return true
			}
		}
	}
	return false
}
