package utils

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var taskSlugPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,50}$`)

// NewValidator returns a validator that reports json field names and knows the
// task_slug tag.
func NewValidator() *validator.Validate {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = validate.RegisterValidation("task_slug", func(fl validator.FieldLevel) bool {
		return taskSlugPattern.MatchString(fl.Field().String())
	})
	return validate
}

// FieldError describes the first failing field of a validation error.
type FieldError struct {
	Field string
	Tag   string
}

// FirstFieldError extracts the first field failure from err.
func FirstFieldError(err error) (FieldError, bool) {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) || len(validationErrors) == 0 {
		return FieldError{}, false
	}
	first := validationErrors[0]
	return FieldError{Field: first.Field(), Tag: first.Tag()}, true
}
