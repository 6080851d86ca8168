// Package handlers contains the HTTP handlers of the fare API. Handlers
// depend on small locally defined interfaces and translate domain errors
// into types.AppError for core.Error.
package handlers

import (
	"errors"

	"tripfare/internal/prediction"
	"tripfare/internal/schema"
	"tripfare/internal/types"
)

// toAppError maps prediction and schema errors onto transport errors.
// Anything unrecognized becomes an opaque internal error.
func toAppError(err error) *types.AppError {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		switch verr.Kind {
		case schema.KindMissingFields:
			return types.NewAppErrorWithDetails(
				types.ErrCodeValidationMissingField, verr.Error(), err,
				map[string]any{"missing_fields": verr.Missing},
			)
		case schema.KindInvalidCategory:
			return types.NewAppErrorWithDetails(
				types.ErrCodeValidationInvalidCategory, verr.Error(), err,
				map[string]any{"field": verr.Field, "value": verr.Value, "allowed": verr.Allowed},
			)
		case schema.KindInvalidNumber:
			return types.NewAppErrorWithDetails(
				types.ErrCodeValidationInvalidNumber, verr.Error(), err,
				map[string]any{"field": verr.Field, "value": verr.Value},
			)
		}
	}

	switch {
	case errors.Is(err, prediction.ErrServiceNotReady):
		return types.NewAppError(types.ErrCodeServiceNotReady, "model is not trained yet", err)
	case errors.Is(err, prediction.ErrInternalPrediction):
		return types.NewAppError(types.ErrCodeInternalPrediction, "prediction failed", err)
	default:
		return types.NewAppError(types.ErrCodeInternalUnexpected, "an unexpected error occurred", err)
	}
}
