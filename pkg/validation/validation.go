// Package validation wraps go-playground/validator with the domain's custom
// tags and a flat, client-readable error list.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	apperrors "slotkeeper/pkg/errors"
	"slotkeeper/pkg/logger"

	"github.com/go-playground/validator/v10"
)

var (
	currencyRegex = regexp.MustCompile(`^[A-Z]{3}$`)
	sessionRegex  = regexp.MustCompile(`^[A-Za-z0-9_\-#.:]{1,128}$`)
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

// Details renders the errors for an AppError details map.
func (v ValidationErrors) Details() map[string]any {
	fields := make(map[string]any, len(v))
	for _, err := range v {
		fields[err.Field] = err.Message
	}
	return map[string]any{"fields": fields}
}

type Validator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func New(log *logger.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	custom := map[string]validator.Func{
		"currency_code": validateCurrencyCode,
		"session_token": validateSessionToken,
	}
	for tag, fn := range custom {
		if err := v.RegisterValidation(tag, fn); err != nil {
			log.Fatal("Failed to register validator", "tag", tag, "error", err)
		}
	}

	return &Validator{
		validate: v,
		logger:   log,
	}
}

func validateCurrencyCode(fl validator.FieldLevel) bool {
	return currencyRegex.MatchString(fl.Field().String())
}

func validateSessionToken(fl validator.FieldLevel) bool {
	return sessionRegex.MatchString(fl.Field().String())
}

// Struct validates s and returns ValidationErrors for tag failures.
func (v *Validator) Struct(s any) error {
	if err := v.validate.Struct(s); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return translateValidationErrors(validationErrs, "")
		}
		return err
	}
	return nil
}

// Var validates a single value; field names it in the resulting errors.
func (v *Validator) Var(field string, value any, tag string) error {
	if err := v.validate.Var(value, tag); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return translateValidationErrors(validationErrs, field)
		}
		return err
	}
	return nil
}

func translateValidationErrors(errs validator.ValidationErrors, fieldName string) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		field := err.Field()
		if fieldName != "" {
			field = fieldName
		}
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", field)
		case "min":
			message = fmt.Sprintf("%s must be at least %s", field, err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", field, err.Param())
		case "gte":
			message = fmt.Sprintf("%s must be greater than or equal to %s", field, err.Param())
		case "gtfield":
			message = fmt.Sprintf("%s must be after %s", field, err.Param())
		case "email":
			message = fmt.Sprintf("%s must be a valid e-mail address", field)
		case "e164":
			message = fmt.Sprintf("%s must be in E.164 format (e.g., +48601234567)", field)
		case "oneof":
			message = fmt.Sprintf("%s must be one of: %s", field, err.Param())
		case "currency_code":
			message = fmt.Sprintf("%s must be a 3-letter ISO 4217 code", field)
		case "session_token":
			message = fmt.Sprintf("%s contains unsupported characters", field)
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   field,
			Message: message,
		})
	}

	return validationErrors
}

// ToAppError turns a validation failure into a 422 carrying the field list.
func ToAppError(message string, err error) *apperrors.AppError {
	var validationErrs ValidationErrors
	if errors.As(err, &validationErrs) {
		return apperrors.Validation(message, validationErrs.Details())
	}
	return apperrors.Validation(message, map[string]any{"error": err.Error()})
}
