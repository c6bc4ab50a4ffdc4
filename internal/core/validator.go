package core

import (
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"studiobook/internal/types"
)

// errCodeValidationFailed is the chassis-level code for struct tag
// validation failures on request DTOs.
const errCodeValidationFailed types.ErrorCode = "validation_failed"

// Validator wraps go-playground/validator and translates tag failures into
// field-level AppError details.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a new Validator.
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		validate: validator.New(),
		logger:   logger,
	}
}

// ValidateStruct validates the struct's `validate` tags. On failure it
// returns a validation_failed AppError whose details map each offending
// field to the rule it broke.
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		// InvalidValidationError: the caller passed something that is not a
		// struct. A programming error, not client input.
		v.logger.Error("validator invoked on non-struct value", slog.Any("error", err))
		return types.NewAppError(types.ErrCodeInternalUnexpected, "request validation failed", err)
	}

	details := make(map[string]any, len(validationErrs))
	for _, fe := range validationErrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		details[fieldName(fe)] = rule
	}

	return types.NewAppErrorWithDetails(errCodeValidationFailed,
		"request validation failed", nil, details)
}

// fieldName renders the struct namespace below the root type in lower snake
// case, matching the JSON field naming convention of the API.
func fieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx >= 0 {
		ns = ns[idx+1:]
	}
	return toSnake(ns)
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && s[i-1] != '.' && s[i-1] != '_' {
				prev := rune(s[i-1])
				if prev < 'A' || prev > 'Z' {
					b.WriteByte('_')
				}
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
