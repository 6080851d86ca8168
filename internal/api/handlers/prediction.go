package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"tripfare/internal/core"
	"tripfare/internal/prediction"
	"tripfare/internal/schema"
	"tripfare/internal/training"
	"tripfare/internal/types"
)

// Predictor is the subset of prediction.Service the handler needs.
type Predictor interface {
	Ready() bool
	Schema() *schema.Schema
	Predict(ctx context.Context, r schema.Record) (*prediction.Result, error)
	Artifact() (*training.Artifact, bool)
}

const defaultTopImportances = 10

// PredictResponse is the body of a successful prediction.
type PredictResponse struct {
	EstimatedPrice float64 `json:"estimated_price"`
}

// MetricsQuery holds the query parameters of GET /v1/model/metrics.
type MetricsQuery struct {
	Top int `query:"top" validate:"min=0,max=100"`
}

// ModelMetricsResponse describes the active model and its held-out scores.
type ModelMetricsResponse struct {
	ArtifactID         string                       `json:"artifact_id"`
	TrainedAt          time.Time                    `json:"trained_at"`
	MAE                float64                      `json:"mae"`
	MSE                float64                      `json:"mse"`
	RMSE               float64                      `json:"rmse"`
	R2                 float64                      `json:"r2"`
	TrainRows          int                          `json:"train_rows"`
	TestRows           int                          `json:"test_rows"`
	FeatureImportances []training.FeatureImportance `json:"feature_importances"`
}

// CategoricalField is one categorical feature and its legal values.
type CategoricalField struct {
	Name    string   `json:"name"`
	Allowed []string `json:"allowed"`
}

// SchemaResponse describes the request record.
type SchemaResponse struct {
	NumericFields     []string           `json:"numeric_fields"`
	CategoricalFields []CategoricalField `json:"categorical_fields"`
	Target            string             `json:"target"`
}

// PredictionHandler serves predictions and model introspection.
type PredictionHandler struct {
	predictor Predictor
	validator *core.Validator
	logger    *slog.Logger
}

// NewPredictionHandler creates a PredictionHandler.
func NewPredictionHandler(p Predictor, v *core.Validator, l *slog.Logger) *PredictionHandler {
	if l == nil {
		l = slog.Default()
	}
	return &PredictionHandler{predictor: p, validator: v, logger: l}
}

// RegisterRoutes mounts the versioned endpoints.
func (h *PredictionHandler) RegisterRoutes(r chi.Router) {
	r.Post("/predict", h.Predict)
	r.Get("/model/metrics", h.ModelMetrics)
	r.Get("/schema", h.Schema)
}

// RegisterUnversionedRoutes mounts POST /predict at the root.
func (h *PredictionHandler) RegisterUnversionedRoutes(r chi.Router) {
	r.Post("/predict", h.Predict)
}

// Predict handles POST /predict.
//
// Order of checks: readiness (503), JSON decoding (400), unknown fields
// (400), schema validation (400), model (500 on failure).
func (h *PredictionHandler) Predict(w http.ResponseWriter, r *http.Request) {
	if !h.predictor.Ready() {
		core.Error(w, r, toAppError(prediction.ErrServiceNotReady))
		return
	}

	var record schema.Record
	if err := core.DecodeJSON(w, r, &record); err != nil {
		core.Error(w, r, err)
		return
	}

	if unknown := h.predictor.Schema().UnknownFields(record); len(unknown) > 0 {
		core.Error(w, r, types.NewAppErrorWithDetails(
			types.ErrCodeValidationUnknownField,
			"unknown fields in request body: "+strings.Join(unknown, ", "),
			nil,
			map[string]any{"unknown_fields": unknown},
		))
		return
	}

	res, err := h.predictor.Predict(r.Context(), record)
	if err != nil {
		appErr := toAppError(err)
		if appErr.HTTPStatus() >= http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "prediction request failed",
				"request_id", types.GetRequestID(r.Context()),
				"error", err,
			)
		}
		core.Error(w, r, appErr)
		return
	}

	core.JSON(w, r, http.StatusOK, PredictResponse{EstimatedPrice: res.EstimatedPrice})
}

// ModelMetrics handles GET /v1/model/metrics?top=N.
func (h *PredictionHandler) ModelMetrics(w http.ResponseWriter, r *http.Request) {
	q := MetricsQuery{Top: defaultTopImportances}
	if raw := r.URL.Query().Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			core.Error(w, r, types.NewAppErrorWithDetails(
				types.ErrCodeValidationInvalidQuery,
				"top must be an integer",
				err,
				map[string]any{"parameter": "top", "value": raw},
			))
			return
		}
		q.Top = n
	}
	if err := h.validator.ValidateStruct(q); err != nil {
		core.Error(w, r, err)
		return
	}

	a, ok := h.predictor.Artifact()
	if !ok {
		core.Error(w, r, toAppError(prediction.ErrServiceNotReady))
		return
	}

	top := a.Importances
	if q.Top < len(top) {
		top = top[:q.Top]
	}

	core.JSON(w, r, http.StatusOK, ModelMetricsResponse{
		ArtifactID:         a.ID,
		TrainedAt:          a.TrainedAt,
		MAE:                a.Metrics.MAE,
		MSE:                a.Metrics.MSE,
		RMSE:               a.Metrics.RMSE,
		R2:                 a.Metrics.R2,
		TrainRows:          a.TrainRows,
		TestRows:           a.TestRows,
		FeatureImportances: top,
	})
}

// Schema handles GET /v1/schema.
func (h *PredictionHandler) Schema(w http.ResponseWriter, r *http.Request) {
	s := h.predictor.Schema()

	cats := make([]CategoricalField, 0, len(s.CategoricalFields()))
	for _, name := range s.CategoricalFields() {
		allowed, _ := s.CategoricalDomain(name)
		cats = append(cats, CategoricalField{Name: name, Allowed: allowed})
	}

	core.JSON(w, r, http.StatusOK, SchemaResponse{
		NumericFields:     s.NumericFields(),
		CategoricalFields: cats,
		Target:            s.Target(),
	})
}
