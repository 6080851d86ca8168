package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"

	"tripfare/internal/schema"
)

// missingTokens are CSV cell values read as missing.
var missingTokens = map[string]struct{}{
	"":     {},
	"NA":   {},
	"N/A":  {},
	"NaN":  {},
	"nan":  {},
	"null": {},
	"NULL": {},
}

// FileSource reads a CSV file with a header row. Files ending in ".zst" are
// zstd-compressed.
type FileSource struct {
	Path string
}

func (f FileSource) Describe() string {
	return "file " + f.Path
}

func (f FileSource) Read(ctx context.Context, s *schema.Schema) ([]schema.Record, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w", ErrDatasetNotFound, err)
		}
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer file.Close()

	var r io.Reader = file
	if strings.HasSuffix(f.Path, ".zst") {
		dec, err := zstd.NewReader(file, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("%w: zstd reader: %w", ErrDatasetMalformed, err)
		}
		defer dec.Close()
		r = dec
	}

	return ReadCSV(ctx, r, s)
}

// ReadCSV parses CSV rows from r. Extra columns are ignored; a missing
// schema or target column is ErrDatasetMalformed.
func ReadCSV(ctx context.Context, r io.Reader, s *schema.Schema) ([]schema.Record, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty file", ErrDatasetMalformed)
		}
		return nil, fmt.Errorf("%w: header: %w", ErrDatasetMalformed, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimSpace(name)] = i
	}

	numeric := append(s.NumericFields(), s.Target())
	categorical := s.CategoricalFields()

	var absent []string
	for _, name := range append(append([]string{}, numeric...), categorical...) {
		if _, ok := columns[name]; !ok {
			absent = append(absent, name)
		}
	}
	if len(absent) > 0 {
		return nil, fmt.Errorf("%w: missing columns %v", ErrDatasetMalformed, absent)
	}

	var rows []schema.Record
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		cells, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDatasetMalformed, err)
		}

		row := make(schema.Record, len(numeric)+len(categorical))
		for _, name := range numeric {
			cell := strings.TrimSpace(cells[columns[name]])
			if isMissingToken(cell) {
				row[name] = nil
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
				return nil, fmt.Errorf("%w: line %d column %s: %q is not a finite number", ErrDatasetMalformed, line, name, cell)
			}
			row[name] = v
		}
		for _, name := range categorical {
			cell := strings.TrimSpace(cells[columns[name]])
			if isMissingToken(cell) {
				row[name] = nil
				continue
			}
			row[name] = cell
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func isMissingToken(cell string) bool {
	_, ok := missingTokens[cell]
	return ok
}
