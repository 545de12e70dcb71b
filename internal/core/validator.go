package core

import (
	"errors"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"proofwork/internal/types"
)

// Validator wraps go-playground/validator for request bodies. Field names in
// errors are reported by their json tag.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a Validator and registers the domain tags:
//
//	quota_action   a known types.QuotaAction
func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("quota_action", func(fl validator.FieldLevel) bool {
		switch types.QuotaAction(fl.Field().String()) {
		case types.ActionCreateProject, types.ActionCreateSession:
			return true
		}
		return false
	})
	return &Validator{validate: v, logger: logger}
}

// ValidateStruct checks s against its validate tags. Failures come back as a
// 400 AppError listing each offending field and the rule it broke.
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		if v.logger != nil {
			v.logger.Error("validator misuse", slog.Any("error", err))
		}
		return types.NewAppError(types.ErrCodeInternalUnexpected, "request validation failed", err)
	}

	fields := make(map[string]any, len(verrs))
	code := types.ErrCodeValidationMissingField
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
		if fe.Tag() == "quota_action" {
			code = types.ErrCodeValidationInvalidAction
		}
	}
	return types.NewAppErrorWithDetails(code, "request body failed validation", err, map[string]any{"fields": fields})
}
