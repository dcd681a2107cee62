package artifact

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
)

// Row is one parsed report line keyed by internal field name.
type Row map[string]string

// Table is a parsed report.
type Table struct {
	// Headers holds the renamed column names in file order.
	Headers []string
	Rows    []Row
}

// ParseCSV parses report content into rows of named fields.
//
// Quoted fields may contain commas, newlines and doubled quotes. Header
// names found in renames are replaced by their mapped value; others pass
// through unchanged. Rows shorter than the header get empty values for the
// missing columns, extra trailing fields are dropped.
func ParseCSV(content string, renames map[string]string) (*Table, error) {
	content = strings.TrimPrefix(content, "\ufeff")
	if strings.TrimSpace(content) == "" {
		return &Table{}, nil
	}

	r := csv.NewReader(strings.NewReader(content))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read CSV header")
	}

	headers := make([]string, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if mapped, ok := renames[h]; ok {
			h = mapped
		}
		headers[i] = h
	}

	table := &Table{Headers: headers}
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read CSV row %d", len(table.Rows)+1)
		}
		if isBlank(record) {
			continue
		}

		row := make(Row, len(headers))
		for i, h := range headers {
			if i < len(record) {
				row[h] = record[i]
			} else {
				row[h] = ""
			}
		}
		table.Rows = append(table.Rows, row)
	}

	return table, nil
}

func isBlank(record []string) bool {
	return len(record) == 1 && strings.TrimSpace(record[0]) == ""
}
