package etl

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"harmonycore/pkg/domain"
)

var fieldsHeader = []string{"source_file_id", "field_key", "value"}

// ReadFields parses a tab-separated batch of raw fields. A header row naming
// the three columns is optional.
func ReadFields(r io.Reader) ([]domain.RawField, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = len(fieldsHeader)
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	var out []domain.RawField
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read fields: %w", err)
		}
		if line == 1 && isHeader(rec) {
			continue
		}
		out = append(out, domain.RawField{SourceFileID: rec[0], FieldKey: rec[1], Value: rec[2]})
	}
}

func isHeader(rec []string) bool {
	for i, name := range fieldsHeader {
		if !strings.EqualFold(strings.TrimSpace(rec[i]), name) {
			return false
		}
	}
	return true
}

// WriteFields writes fields in the layout ReadFields accepts, header first.
func WriteFields(w io.Writer, fields []domain.RawField) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := cw.Write(fieldsHeader); err != nil {
		return err
	}
	for _, f := range fields {
		if err := cw.Write([]string{f.SourceFileID, f.FieldKey, f.Value}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
