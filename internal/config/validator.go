package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ValidationError represents a single configuration validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

func (r *ValidationResult) addError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

var validate = validator.New()

// Validate runs struct-tag validation over Options, reporting every
// failing field in a single ValidationResult. Bounded fields like
// PlayerUpdateInterval are clamped by Normalize rather than rejected.
func Validate(o Options) *ValidationResult {
	result := &ValidationResult{}

	if err := validate.Struct(o); err != nil {
		for _, fe := range err.(validator.ValidationErrors) {
			result.addError(fe.Namespace(), fmt.Sprintf("failed on %q", fe.Tag()))
		}
	}

	return result
}
