// Package prediction serves price estimates from a trained pipeline.
//
// A Service starts Untrained and moves to Ready exactly once, when an
// Artifact is activated. After that the artifact is only ever read, so any
// number of goroutines may call Predict without locking.
package prediction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"tripfare/internal/dataset"
	"tripfare/internal/schema"
	"tripfare/internal/training"
)

var (
	ErrServiceNotReady    = errors.New("prediction service is not ready")
	ErrAlreadyReady       = errors.New("prediction service already has an artifact")
	ErrInternalPrediction = errors.New("internal prediction failure")
)

// State is the lifecycle state of a Service.
type State int

const (
	StateUntrained State = iota
	StateReady
)

func (s State) String() string {
	if s == StateReady {
		return "ready"
	}
	return "untrained"
}

// Result is one served prediction.
type Result struct {
	Price          float64 // unrounded model output
	EstimatedPrice float64 // Price rounded to cents
	ArtifactID     string
}

// Observer is notified after every successful prediction. Observers run on
// their own goroutine; they cannot delay or fail the prediction.
type Observer func(Result)

// Option configures a Service.
type Option func(*Service)

// WithObserver registers an Observer.
func WithObserver(o Observer) Option {
	return func(s *Service) {
		s.observers = append(s.observers, o)
	}
}

// Service validates requests and runs them through the active artifact.
type Service struct {
	schema    *schema.Schema
	logger    *slog.Logger
	artifact  atomic.Pointer[training.Artifact]
	observers []Observer
	pending   sync.WaitGroup
}

// NewService creates an Untrained service for records described by s.
func NewService(s *schema.Schema, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	svc := &Service{schema: s, logger: logger}
	for _, o := range opts {
		o(svc)
	}
	return svc
}

// Schema returns the schema requests are validated against.
func (s *Service) Schema() *schema.Schema {
	return s.schema
}

// State reports whether an artifact has been activated.
func (s *Service) State() State {
	if s.artifact.Load() == nil {
		return StateUntrained
	}
	return StateReady
}

// Ready is shorthand for State() == StateReady.
func (s *Service) Ready() bool {
	return s.State() == StateReady
}

// Activate installs the artifact and moves the service to Ready. It
// succeeds once; later calls return ErrAlreadyReady.
func (s *Service) Activate(a *training.Artifact) error {
	if a == nil || a.Preprocessor == nil || a.Model == nil {
		return errors.New("prediction: cannot activate an incomplete artifact")
	}
	if a.Schema != nil && a.Schema != s.schema {
		return errors.New("prediction: artifact was trained on a different schema")
	}
	if !s.artifact.CompareAndSwap(nil, a) {
		return ErrAlreadyReady
	}

	s.logger.Info("prediction service ready",
		"artifact_id", a.ID,
		"train_rows", a.TrainRows,
		"test_rows", a.TestRows,
		"mae", a.Metrics.MAE,
		"mse", a.Metrics.MSE,
		"r2", a.Metrics.R2,
	)
	return nil
}

// TrainAndActivate trains on ds and activates the result.
func (s *Service) TrainAndActivate(ctx context.Context, ds *dataset.Dataset, cfg training.Config) (*training.Artifact, error) {
	if s.Ready() {
		return nil, ErrAlreadyReady
	}
	a, err := training.Train(ctx, s.schema, ds, cfg)
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}
	if err := s.Activate(a); err != nil {
		return nil, err
	}
	return a, nil
}

// Artifact returns the active artifact, if any.
func (s *Service) Artifact() (*training.Artifact, bool) {
	a := s.artifact.Load()
	return a, a != nil
}

// Metrics returns the held-out evaluation of the active artifact.
func (s *Service) Metrics() (training.Metrics, error) {
	a := s.artifact.Load()
	if a == nil {
		return training.Metrics{}, ErrServiceNotReady
	}
	return a.Metrics, nil
}

// Predict validates r and returns the estimated price. Validation failures
// are returned as *schema.ValidationError and never reach the model.
func (s *Service) Predict(ctx context.Context, r schema.Record) (*Result, error) {
	a := s.artifact.Load()
	if a == nil {
		return nil, ErrServiceNotReady
	}

	if err := s.schema.Validate(r); err != nil {
		return nil, err
	}

	price, err := s.run(a, r)
	if err != nil {
		s.logger.ErrorContext(ctx, "prediction failed", "artifact_id", a.ID, "error", err)
		return nil, err
	}

	res := Result{
		Price:          price,
		EstimatedPrice: Round(price),
		ArtifactID:     a.ID,
	}
	s.notify(res)
	return &res, nil
}

// run isolates faults inside the pipeline to the current request.
func (s *Service) run(a *training.Artifact, r schema.Record) (price float64, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrInternalPrediction, p)
		}
	}()

	price = a.Predict(r)
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, fmt.Errorf("%w: model produced %v", ErrInternalPrediction, price)
	}
	return price, nil
}

func (s *Service) notify(res Result) {
	for _, o := range s.observers {
		s.pending.Add(1)
		go func() {
			defer s.pending.Done()
			defer func() {
				if p := recover(); p != nil {
					s.logger.Error("prediction observer panicked", "panic", p)
				}
			}()
			o(res)
		}()
	}
}

// Wait blocks until every dispatched observer has returned.
func (s *Service) Wait() {
	s.pending.Wait()
}

// Round rounds a price to two decimal places.
func Round(price float64) float64 {
	return math.Round(price*100) / 100
}
