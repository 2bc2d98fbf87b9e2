package criteria

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInteger    = errors.New("integer")
	ErrRange      = errors.New("range")
	ErrDateFormat = errors.New("dateFormat")
)

// Control is a single form field. A pristine control has never been edited.
type Control struct {
	Value string
	Dirty bool
}

func Pristine(value string) Control { return Control{Value: value} }

func Dirty(value string) Control { return Control{Value: value, Dirty: true} }

type FieldError struct {
	Field string
	Value string
	Kind  error
	Min   int
	Max   int
}

func (e *FieldError) Error() string {
	field := e.Field
	if field == "" {
		field = "value"
	}
	switch {
	case errors.Is(e.Kind, ErrRange):
		return fmt.Sprintf("%s must be between %d and %d", field, e.Min, e.Max)
	case errors.Is(e.Kind, ErrInteger):
		return fmt.Sprintf("%s must be a whole number", field)
	case errors.Is(e.Kind, ErrDateFormat):
		return fmt.Sprintf("%s must be a date in YYYY-MM-DD format", field)
	}
	return fmt.Sprintf("%s is invalid: %v", field, e.Kind)
}

func (e *FieldError) Unwrap() error {
	return e.Kind
}

func IsValidationError(err error) bool {
	var fe *FieldError
	return errors.As(err, &fe)
}

// Validator returns nil for an acceptable control, otherwise a *FieldError.
type Validator func(Control) error

// RangeValidator checks for a whole number inside [min, max]. The integer
// check short-circuits the range check.
func RangeValidator(min, max int) Validator {
	return func(c Control) error {
		if !c.Dirty {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(c.Value))
		if err != nil {
			return &FieldError{Value: c.Value, Kind: ErrInteger}
		}
		if n < min || n > max {
			return &FieldError{Value: c.Value, Kind: ErrRange, Min: min, Max: max}
		}
		return nil
	}
}

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

const DateLayout = "2006-01-02"

// DateValidator accepts only strict YYYY-MM-DD calendar dates.
func DateValidator() Validator {
	return func(c Control) error {
		if !c.Dirty {
			return nil
		}
		if !datePattern.MatchString(c.Value) {
			return &FieldError{Value: c.Value, Kind: ErrDateFormat}
		}
		if _, err := time.Parse(DateLayout, c.Value); err != nil {
			return &FieldError{Value: c.Value, Kind: ErrDateFormat}
		}
		return nil
	}
}

// Named labels any *FieldError produced by v with field.
func Named(field string, v Validator) Validator {
	return func(c Control) error {
		err := v(c)
		var fe *FieldError
		if errors.As(err, &fe) {
			fe.Field = field
		}
		return err
	}
}
