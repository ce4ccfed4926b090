package errs

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	playground "github.com/go-playground/validator/v10"
)

var (
	// ErrNotFound is returned when a requested game does not exist upstream.
	ErrNotFound = errors.New("not found")
	// ErrAuthRequired is returned when a session-gated operation runs without a session.
	ErrAuthRequired = errors.New("authentication required")
	// ErrRemoteFailure wraps network and database errors at the call site.
	ErrRemoteFailure = errors.New("remote failure")
	// ErrParseFailure marks a corrupted persisted payload.
	ErrParseFailure = errors.New("parse failure")
)

// ValidationError holds field scoped messages for malformed form input.
type ValidationError struct {
	Fields map[string]string
}

func (v *ValidationError) Error() string {
	keys := make([]string, 0, len(v.Fields))
	for k := range v.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, v.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// Remote wraps err onto ErrRemoteFailure keeping the original message.
func Remote(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %v", op, ErrRemoteFailure, err)
}

// IsValidation reports whether err is a *ValidationError and returns it.
func IsValidation(err error) (*ValidationError, bool) {
	var v *ValidationError
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}

var validate = playground.New()

// Struct validates s using its `validate` tags and converts the result into a
// *ValidationError keyed by the field's json name.
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs playground.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	out := &ValidationError{Fields: make(map[string]string, len(fieldErrs))}
	for _, fe := range fieldErrs {
		out.Fields[jsonName(fe.Field())] = message(fe)
	}
	return out
}

func jsonName(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}

func message(fe playground.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "eqfield":
		return fmt.Sprintf("must match %s", jsonName(fe.Param()))
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
