package reports

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ReadObserved parses an observed-data CSV into one value per row, taken
// from the last column. A non-numeric first row is treated as a header.
func ReadObserved(r io.Reader) ([]float64, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var out []float64
	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read observed data: %w", err)
		}
		field := lastField(record)
		if field == "" {
			continue
		}
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("observed data line %d: %q is not a number", line, field)
		}
		if v < 0 {
			return nil, fmt.Errorf("observed data line %d: negative count %v", line, v)
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, errors.New("observed data contains no values")
	}
	return out, nil
}

// ReadObservedFile opens path and parses it with ReadObserved.
func ReadObservedFile(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open observed data: %w", err)
	}
	defer f.Close()
	return ReadObserved(f)
}

func lastField(record []string) string {
	for i := len(record) - 1; i >= 0; i-- {
		if f := strings.TrimSpace(record[i]); f != "" {
			return f
		}
	}
	return ""
}
