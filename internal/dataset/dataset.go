// Package dataset loads the taxi trip table and removes rows that cannot be
// used for training. Missing feature cells are kept so the preprocessing
// pipeline can impute them.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"tripfare/internal/schema"
)

var (
	// ErrDatasetNotFound is returned when the dataset location does not resolve.
	ErrDatasetNotFound = errors.New("dataset not found")
	// ErrDatasetMalformed is returned when required columns are absent or a
	// cell cannot be parsed.
	ErrDatasetMalformed = errors.New("dataset malformed")
)

// Source produces raw rows keyed by column name. Rows contain every schema
// feature column plus the target; missing cells are nil.
type Source interface {
	Read(ctx context.Context, s *schema.Schema) ([]schema.Record, error)
	Describe() string
}

// CleanStats summarizes the cleaning pass.
type CleanStats struct {
	TotalRows           int `json:"total_rows"`
	MissingTargetBefore int `json:"missing_target_before"`
	MissingTargetAfter  int `json:"missing_target_after"`
	DroppedRows         int `json:"dropped_rows"`
}

// Dataset is the cleaned feature table and target vector. Records[i] holds
// the features of the row whose price is Targets[i].
type Dataset struct {
	Records []schema.Record
	Targets []float64
	Stats   CleanStats
}

// Len returns the number of usable rows.
func (d *Dataset) Len() int {
	return len(d.Targets)
}

// Subset returns a dataset with the rows at idx, in that order. Records are
// shared, not copied.
func (d *Dataset) Subset(idx []int) *Dataset {
	out := &Dataset{
		Records: make([]schema.Record, len(idx)),
		Targets: make([]float64, len(idx)),
	}
	for i, j := range idx {
		out.Records[i] = d.Records[j]
		out.Targets[i] = d.Targets[j]
	}
	return out
}

// Load reads every row from src and drops rows whose target is missing.
func Load(ctx context.Context, src Source, s *schema.Schema, logger *slog.Logger) (*Dataset, error) {
	if logger == nil {
		logger = slog.Default()
	}

	rows, err := src.Read(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", src.Describe(), err)
	}

	ds := Clean(rows, s)

	logger.Info("missing target values before cleaning",
		"source", src.Describe(),
		"target", s.Target(),
		"count", ds.Stats.MissingTargetBefore,
		"total_rows", ds.Stats.TotalRows,
	)
	logger.Info("missing target values after cleaning",
		"source", src.Describe(),
		"target", s.Target(),
		"count", ds.Stats.MissingTargetAfter,
		"dropped_rows", ds.Stats.DroppedRows,
		"rows", ds.Len(),
	)

	return ds, nil
}

// Clean splits raw rows into features and target, discarding rows with a
// missing or non-numeric target. The target column is removed from the
// returned records.
func Clean(rows []schema.Record, s *schema.Schema) *Dataset {
	target := s.Target()
	ds := &Dataset{
		Records: make([]schema.Record, 0, len(rows)),
		Targets: make([]float64, 0, len(rows)),
	}
	ds.Stats.TotalRows = len(rows)

	for _, row := range rows {
		y, ok := schema.NumericValue(row[target])
		if !ok {
			ds.Stats.MissingTargetBefore++
			continue
		}

		features := make(schema.Record, len(row))
		for k, v := range row {
			if k != target {
				features[k] = v
			}
		}
		ds.Records = append(ds.Records, features)
		ds.Targets = append(ds.Targets, y)
	}

	ds.Stats.DroppedRows = ds.Stats.MissingTargetBefore
	for _, y := range ds.Targets {
		if schema.IsMissing(y) {
			ds.Stats.MissingTargetAfter++
		}
	}
	return ds
}
