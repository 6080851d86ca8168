package form

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripfare/internal/dataset/datasettest"
	"tripfare/internal/forest"
	"tripfare/internal/insights"
	"tripfare/internal/prediction"
	"tripfare/internal/schema"
	"tripfare/internal/training"
)

type stubPredictor struct {
	predictFn func(r schema.Record) (*prediction.Result, error)
	artifact  *training.Artifact
	got       []schema.Record
}

func (s *stubPredictor) Schema() *schema.Schema { return schema.Default() }

func (s *stubPredictor) Predict(_ context.Context, r schema.Record) (*prediction.Result, error) {
	s.got = append(s.got, r)
	return s.predictFn(r)
}

func (s *stubPredictor) Artifact() (*training.Artifact, bool) {
	return s.artifact, s.artifact != nil
}

type recordingAnnouncer struct {
	texts []string
}

func (r *recordingAnnouncer) Announce(text string) { r.texts = append(r.texts, text) }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// tripInput answers the prompts in field order: six numbers then four
// categories.
func tripInput(values ...string) string {
	return strings.Join(values, "\n") + "\n"
}

var scenarioB = tripInput("19.35", "53.82", "3", "3.56", "0.80", "0.32", "Morning", "Weekday", "Low", "Clear")

func runForm(t *testing.T, p Predictor, report *insights.Report, a Announcer, input string) string {
	t.Helper()
	var out bytes.Buffer
	f := New(strings.NewReader(input), &out, p, report, a, discard())
	require.NoError(t, f.Run(context.Background()))
	return out.String()
}

func TestPredict_ShowsAndAnnouncesPrice(t *testing.T) {
	p := &stubPredictor{predictFn: func(schema.Record) (*prediction.Result, error) {
		return &prediction.Result{Price: 40.1234, EstimatedPrice: 40.12}, nil
	}}
	a := &recordingAnnouncer{}

	out := runForm(t, p, nil, a, "predict\n"+scenarioB+"quit\n")

	assert.Contains(t, out, "The estimated taxi price is $40.12")
	assert.Contains(t, out, "Weather [Clear/Rain/Snow]: ")
	assert.Equal(t, []string{"The estimated taxi price is $40.12"}, a.texts)

	require.Len(t, p.got, 1)
	assert.Equal(t, "19.35", p.got[0][schema.FieldTripDistanceKm])
	assert.Equal(t, "Morning", p.got[0][schema.FieldTimeOfDay])
}

func TestPredict_BlankAnswersAreMissing(t *testing.T) {
	p := &stubPredictor{predictFn: func(r schema.Record) (*prediction.Result, error) {
		return nil, schema.Default().Validate(r)
	}}
	a := &recordingAnnouncer{}

	input := tripInput("5", "12", "", "3", "1", "0.3", "Night", "Weekend", "High", "")
	out := runForm(t, p, nil, a, "predict\n"+input)

	assert.Contains(t, out, "Error: Missing fields: [Passenger_Count, Weather]")
	assert.Empty(t, a.texts)
}

func TestPredict_InvalidValuesNameTheField(t *testing.T) {
	p := &stubPredictor{predictFn: func(r schema.Record) (*prediction.Result, error) {
		return nil, schema.Default().Validate(r)
	}}

	out := runForm(t, p, nil, nil, "p\n"+tripInput("abc", "12", "1", "3", "1", "0.3", "Night", "Weekend", "High", "Clear"))
	assert.Contains(t, out, `Invalid number "abc" for Trip_Distance_km`)

	out = runForm(t, p, nil, nil, "p\n"+tripInput("5", "12", "1", "3", "1", "0.3", "Night", "Weekend", "High", "Storm"))
	assert.Contains(t, out, `Invalid value "Storm" for Weather`)
}

func TestPredict_InternalFailureIsOpaque(t *testing.T) {
	p := &stubPredictor{predictFn: func(schema.Record) (*prediction.Result, error) {
		return nil, errors.Join(prediction.ErrInternalPrediction, errors.New("NaN from tree 4"))
	}}

	out := runForm(t, p, nil, nil, "predict\n"+scenarioB)
	assert.Contains(t, out, "Error: prediction failed")
	assert.NotContains(t, out, "NaN")
}

func TestPredict_EndOfInputMidForm(t *testing.T) {
	p := &stubPredictor{}
	out := runForm(t, p, nil, nil, "predict\n5\n12\n")
	assert.Contains(t, out, "Passenger_Count: ")
	assert.Empty(t, p.got)
}

func TestMetrics(t *testing.T) {
	p := &stubPredictor{artifact: &training.Artifact{
		Metrics:   training.Metrics{MAE: 1.234, MSE: 5.678, RMSE: 2.383, R2: 0.9512},
		TrainRows: 80,
		TestRows:  20,
		Importances: []training.FeatureImportance{
			{Feature: "Trip_Distance_km", Importance: 0.71},
		},
	}}

	out := runForm(t, p, nil, nil, "metrics\nquit\n")

	assert.Contains(t, out, "Mean Absolute Error: 1.23")
	assert.Contains(t, out, "Mean Squared Error: 5.68")
	assert.Contains(t, out, "Root Mean Squared Error: 2.38")
	assert.Contains(t, out, "R-squared: 0.95")
	assert.Contains(t, out, "Trained on 80 rows, evaluated on 20")
	assert.Contains(t, out, "Trip_Distance_km: 0.71")
}

func TestMetrics_NotReady(t *testing.T) {
	out := runForm(t, &stubPredictor{}, nil, nil, "metrics\n")
	assert.Contains(t, out, "Error: the model is not trained yet")
}

func TestInsights(t *testing.T) {
	ds := datasettest.Synthetic(datasettest.Options{Rows: 50, Seed: 1})
	report := insights.NewService(schema.Default(), discard()).Generate(ds)

	out := runForm(t, &stubPredictor{}, report, nil, "insights\nq\n")
	assert.Contains(t, out, "Rows:")
	assert.Contains(t, out, "Average price by time of day")

	out = runForm(t, &stubPredictor{}, nil, nil, "insights\n")
	assert.Contains(t, out, "Dataset insights are not available")
}

func TestUnknownCommand(t *testing.T) {
	out := runForm(t, &stubPredictor{}, nil, nil, "fly\nquit\n")
	assert.Contains(t, out, `Unknown command "fly"`)
}

func TestRun_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := New(strings.NewReader("predict\n"), io.Discard, &stubPredictor{}, nil, nil, discard())
	assert.ErrorIs(t, f.Run(ctx), context.Canceled)
}

// TestPredict_TrainedService runs the form against a real trained model.
func TestPredict_TrainedService(t *testing.T) {
	ds := datasettest.Synthetic(datasettest.Options{Rows: 200, Seed: 5})
	svc := prediction.NewService(schema.Default(), discard())
	cfg := training.DefaultConfig()
	cfg.Forest = forest.DefaultConfig()
	cfg.Forest.Estimators = 10
	_, err := svc.TrainAndActivate(context.Background(), ds, cfg)
	require.NoError(t, err)

	a := &recordingAnnouncer{}
	out := runForm(t, svc, nil, a, "predict\n"+scenarioB+"predict\n"+scenarioB+"quit\n")

	require.Len(t, a.texts, 2)
	assert.Equal(t, a.texts[0], a.texts[1])
	assert.Contains(t, out, a.texts[0])
}
