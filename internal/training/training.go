// Package training fits the preprocessing pipeline and the forest as one
// unit and evaluates the result on a held-out partition.
//
// The preprocessor is fitted on the train partition only; the test rows and
// every later request reuse that fitted state, so evaluation measures the
// artifact that is actually served.
package training

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"tripfare/internal/dataset"
	"tripfare/internal/forest"
	"tripfare/internal/preprocess"
	"tripfare/internal/schema"
)

// ErrInsufficientData is returned when the dataset is too small to split
// and evaluate.
var ErrInsufficientData = errors.New("training: insufficient data")

// Model is the fitted estimator inside an Artifact.
type Model interface {
	Predict(X [][]float64) []float64
}

// Config controls the split and the forest.
type Config struct {
	TestRatio float64
	SplitSeed int64
	Forest    forest.Config
}

// DefaultConfig uses an 80/20 split and the default forest, both seeded
// with 42.
func DefaultConfig() Config {
	return Config{
		TestRatio: 0.2,
		SplitSeed: 42,
		Forest:    forest.DefaultConfig(),
	}
}

// Artifact is the trained pipeline: fitted preprocessor, fitted model and
// its evaluation. It is never modified after Train returns.
type Artifact struct {
	ID           string
	TrainedAt    time.Time
	Schema       *schema.Schema
	Preprocessor *preprocess.Preprocessor
	Model        Model
	Metrics      Metrics
	TrainRows    int
	TestRows     int
	Importances  []FeatureImportance
}

// FeatureImportance is the share of impurity decrease attributed to one
// encoded column.
type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// Predict runs a single record through the fitted pipeline. The record is
// expected to have passed schema validation.
func (a *Artifact) Predict(r schema.Record) float64 {
	row := a.Preprocessor.Transform(r)
	return a.Model.Predict([][]float64{row})[0]
}

// Train splits ds, fits the pipeline on the train partition and computes
// metrics on the test partition.
func Train(ctx context.Context, s *schema.Schema, ds *dataset.Dataset, cfg Config) (*Artifact, error) {
	trainIdx, testIdx, err := Split(ds.Len(), cfg.TestRatio, cfg.SplitSeed)
	if err != nil {
		return nil, err
	}
	train := ds.Subset(trainIdx)
	test := ds.Subset(testIdx)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pre, err := preprocess.Fit(s, train.Records)
	if err != nil {
		return nil, fmt.Errorf("fit preprocessor: %w", err)
	}

	model, err := forest.Fit(pre.TransformAll(train.Records), train.Targets, cfg.Forest)
	if err != nil {
		return nil, fmt.Errorf("fit forest: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	metrics, err := Evaluate(test.Targets, model.Predict(pre.TransformAll(test.Records)))
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}

	return &Artifact{
		ID:           uuid.NewString(),
		TrainedAt:    time.Now().UTC(),
		Schema:       s,
		Preprocessor: pre,
		Model:        model,
		Metrics:      metrics,
		TrainRows:    train.Len(),
		TestRows:     test.Len(),
		Importances:  rankImportances(pre.FeatureNames(), model.FeatureImportances()),
	}, nil
}

// rankImportances pairs column names with importances, highest first. Ties
// keep column order.
func rankImportances(names []string, values []float64) []FeatureImportance {
	out := make([]FeatureImportance, len(names))
	for i, name := range names {
		out[i] = FeatureImportance{Feature: name, Importance: values[i]}
	}
	slices.SortStableFunc(out, func(a, b FeatureImportance) int {
		return cmp.Compare(b.Importance, a.Importance)
	})
	return out
}
