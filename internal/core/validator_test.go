package core

import (
	"errors"
	"testing"

	"tripfare/internal/types"
)

type testMetricsQuery struct {
	Top int `query:"top" validate:"min=0,max=50"`
}

type testRequiredStruct struct {
	Name  string `json:"name" validate:"required"`
	Level string `json:"level" validate:"omitempty,oneof=debug info"`
}

func TestValidationResult_IsValid(t *testing.T) {
	if !(ValidationResult{}).IsValid() {
		t.Error("empty result should be valid")
	}
	r := ValidationResult{Errors: []ValidationError{{Field: "top", Code: "x"}}}
	if r.IsValid() {
		t.Error("result with errors should be invalid")
	}
}

func TestValidateStruct_Success(t *testing.T) {
	v := NewValidator(testLogger())
	if err := v.ValidateStruct(testMetricsQuery{Top: 5}); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
}

func TestValidateStruct_RangeFailureUsesQueryName(t *testing.T) {
	v := NewValidator(testLogger())

	err := v.ValidateStruct(testMetricsQuery{Top: 500})
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T: %v", err, err)
	}
	if appErr.Code != types.ErrCodeValidationInvalidInput {
		t.Errorf("Code = %s", appErr.Code)
	}
	if appErr.Message != "top must be at most 50" {
		t.Errorf("Message = %q", appErr.Message)
	}
	errs, ok := appErr.Details["validation_errors"].([]ValidationError)
	if !ok || len(errs) != 1 || errs[0].Field != "top" {
		t.Errorf("validation_errors = %#v", appErr.Details["validation_errors"])
	}
}

func TestValidateStructWithWarnings_CollectsAll(t *testing.T) {
	v := NewValidator(testLogger())

	result := v.ValidateStructWithWarnings(testRequiredStruct{Level: "trace"})
	if len(result.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %+v", result.Errors)
	}

	codes := map[string]string{}
	for _, e := range result.Errors {
		codes[e.Field] = e.Code
	}
	if codes["name"] != string(types.ErrCodeValidationMissingField) {
		t.Errorf("name code = %q", codes["name"])
	}
	if codes["level"] != string(types.ErrCodeValidationInvalidInput) {
		t.Errorf("level code = %q", codes["level"])
	}
}

func TestValidateStruct_NonStructInput(t *testing.T) {
	v := NewValidator(testLogger())
	err := v.ValidateStruct(42)

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeValidationInvalidInput {
		t.Errorf("Code = %s", appErr.Code)
	}
}
