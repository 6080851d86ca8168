// Package form is the line-oriented terminal front-end. It collects one
// trip at a time, sends it through the same prediction.Service the HTTP
// API uses and prints the estimate, model metrics or dataset insights.
package form

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"tripfare/internal/insights"
	"tripfare/internal/prediction"
	"tripfare/internal/schema"
	"tripfare/internal/speech"
	"tripfare/internal/training"
)

// Predictor is the subset of prediction.Service the form needs.
type Predictor interface {
	Schema() *schema.Schema
	Predict(ctx context.Context, r schema.Record) (*prediction.Result, error)
	Artifact() (*training.Artifact, bool)
}

// Announcer speaks a sentence without blocking.
type Announcer interface {
	Announce(text string)
}

// Menu commands.
const (
	CmdPredict  = "predict"
	CmdMetrics  = "metrics"
	CmdInsights = "insights"
	CmdQuit     = "quit"
)

// Form reads commands and field values from in and writes to out.
type Form struct {
	in        *bufio.Scanner
	out       io.Writer
	predictor Predictor
	report    *insights.Report
	announcer Announcer
	logger    *slog.Logger
}

// New creates a Form. report and announcer may be nil.
func New(in io.Reader, out io.Writer, p Predictor, report *insights.Report, a Announcer, logger *slog.Logger) *Form {
	if logger == nil {
		logger = slog.Default()
	}
	return &Form{
		in:        bufio.NewScanner(in),
		out:       out,
		predictor: p,
		report:    report,
		announcer: a,
		logger:    logger,
	}
}

// Run loops over menu commands until quit, end of input or ctx is done.
func (f *Form) Run(ctx context.Context) error {
	f.printf("Taxi Price Prediction\n")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		f.printf("\nCommand [%s/%s/%s/%s]: ", CmdPredict, CmdMetrics, CmdInsights, CmdQuit)
		line, ok := f.readLine()
		if !ok {
			return f.in.Err()
		}

		switch strings.ToLower(line) {
		case CmdPredict, "p":
			if err := f.predict(ctx); err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				return err
			}
		case CmdMetrics, "m":
			f.metrics()
		case CmdInsights, "i":
			f.insights()
		case CmdQuit, "q", "exit":
			return nil
		case "":
		default:
			f.printf("Unknown command %q\n", line)
		}
	}
}

// predict prompts for every field, then shows the estimate or the
// validation message.
func (f *Form) predict(ctx context.Context) error {
	record, err := f.collect()
	if err != nil {
		return err
	}

	res, err := f.predictor.Predict(ctx, record)
	if err != nil {
		if errors.Is(err, prediction.ErrInternalPrediction) {
			f.logger.Error("prediction failed", "error", err)
		}
		f.printf("Error: %s\n", describe(err))
		return nil
	}

	sentence := speech.PriceSentence(res.EstimatedPrice)
	f.printf("%s\n", sentence)
	if f.announcer != nil {
		f.announcer.Announce(sentence)
	}
	return nil
}

// collect reads one value per field. Blank numeric or categorical answers
// are left out of the record so validation reports them as missing.
func (f *Form) collect() (schema.Record, error) {
	s := f.predictor.Schema()
	record := make(schema.Record, len(s.RequiredFields()))

	for _, name := range s.NumericFields() {
		f.printf("%s: ", name)
		v, ok := f.readLine()
		if !ok {
			return nil, io.EOF
		}
		if v != "" {
			record[name] = v
		}
	}

	for _, name := range s.CategoricalFields() {
		allowed, _ := s.CategoricalDomain(name)
		f.printf("%s [%s]: ", name, strings.Join(allowed, "/"))
		v, ok := f.readLine()
		if !ok {
			return nil, io.EOF
		}
		if v != "" {
			record[name] = v
		}
	}
	return record, nil
}

func (f *Form) metrics() {
	a, ok := f.predictor.Artifact()
	if !ok {
		f.printf("Error: %s\n", describe(prediction.ErrServiceNotReady))
		return
	}
	m := a.Metrics
	f.printf("Mean Absolute Error: %.2f\n", m.MAE)
	f.printf("Mean Squared Error: %.2f\n", m.MSE)
	f.printf("Root Mean Squared Error: %.2f\n", m.RMSE)
	f.printf("R-squared: %.2f\n", m.R2)
	f.printf("Trained on %d rows, evaluated on %d\n", a.TrainRows, a.TestRows)

	top := a.Importances
	if len(top) > 5 {
		top = top[:5]
	}
	if len(top) > 0 {
		f.printf("Top features:\n")
		for _, fi := range top {
			f.printf("  %s: %.2f\n", fi.Feature, fi.Importance)
		}
	}
}

func (f *Form) insights() {
	if f.report == nil {
		f.printf("Dataset insights are not available\n")
		return
	}
	if err := f.report.Write(f.out); err != nil {
		f.logger.Warn("writing insights failed", "error", err)
	}
}

// describe turns a prediction error into a message for the operator.
func describe(err error) string {
	var verr *schema.ValidationError
	switch {
	case errors.As(err, &verr):
		return verr.Error()
	case errors.Is(err, prediction.ErrServiceNotReady):
		return "the model is not trained yet"
	default:
		return "prediction failed"
	}
}

func (f *Form) readLine() (string, bool) {
	if !f.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(f.in.Text()), true
}

func (f *Form) printf(format string, args ...any) {
	fmt.Fprintf(f.out, format, args...)
}
