// Package validation wraps go-playground/validator with the custom rules
// used by the clinic API and converts failures into apperr validation errors
// keyed by JSON field name.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/clinic/clinic/internal/platform/apperr"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

const (
	minPhoneDigits = 10
	maxPhoneDigits = 15
)

// Validator implements echo.Validator.
type Validator struct {
	v   *validator.Validate
	now func() time.Time
}

func New() *Validator {
	val := &Validator{v: validator.New(validator.WithRequiredStructEnabled()), now: time.Now}

	val.v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})

	// Registration only fails for empty tags or nil funcs.
	_ = val.v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return ValidPhone(fl.Field().String())
	})
	_ = val.v.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
		_, err := time.Parse(DateLayout, fl.Field().String())
		return err == nil
	})
	_ = val.v.RegisterValidation("notfuture", func(fl validator.FieldLevel) bool {
		d, err := time.Parse(DateLayout, fl.Field().String())
		if err != nil {
			// isodate reports the format problem.
			return true
		}
		return !d.After(today(val.now()))
	})

	return val
}

// Validate checks i against its validate tags. It returns nil or an
// *apperr.Error of kind validation with one message per failing field.
func (val *Validator) Validate(i interface{}) error {
	err := val.v.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Internal(fmt.Errorf("validate: %w", err))
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		if _, seen := fields[fe.Field()]; seen {
			continue
		}
		fields[fe.Field()] = message(fe)
	}
	return apperr.Validation(fields)
}

// ValidPhone reports whether s holds 10 to 15 digits once formatting
// characters are stripped.
func ValidPhone(s string) bool {
	n := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n >= minPhoneDigits && n <= maxPhoneDigits
}

func today(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "enter a valid email address"
	case "phone":
		return fmt.Sprintf("phone number must be between %d and %d digits", minPhoneDigits, maxPhoneDigits)
	case "isodate":
		return "date must be in YYYY-MM-DD format"
	case "notfuture":
		return "date cannot be in the future"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return "must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return "must be at most " + fe.Param()
	case "uuid":
		return "must be a valid id"
	default:
		return "invalid value"
	}
}
