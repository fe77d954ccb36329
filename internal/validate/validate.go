// Package validate checks caller-supplied input with struct tags and turns
// failures into taxonomy validation errors.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/shopspring/decimal"

	"cardfolio-api/pkg/apierror"
)

// Validator wraps a configured validator instance.
type Validator struct {
	validate *validator.Validate
}

// New creates a validator that reports JSON field names and understands
// decimal.Decimal as a number.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		d, ok := field.Interface().(decimal.Decimal)
		if !ok {
			return nil
		}
		f, _ := d.Float64()
		return f
	}, decimal.Decimal{})

	_ = v.RegisterValidation("notblank", validators.NotBlank)

	return &Validator{validate: v}
}

// Struct validates s. The returned error is an *apierror.Error of kind
// Validation with one detail per failing field.
func (v *Validator) Struct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apierror.BadRequest(err.Error())
	}

	details := make([]apierror.FieldError, 0, len(verrs))
	for _, e := range verrs {
		details = append(details, apierror.FieldError{
			Field:   e.Field(),
			Message: message(e.Tag(), e.Param()),
		})
	}
	return apierror.ValidationError("invalid input", details...)
}

// Var validates a single value against tag.
func (v *Validator) Var(field string, value interface{}, tag string) error {
	if err := v.validate.Var(value, tag); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return apierror.ValidationError("invalid input", apierror.FieldError{
				Field:   field,
				Message: message(verrs[0].Tag(), verrs[0].Param()),
			})
		}
		return apierror.BadRequest(err.Error())
	}
	return nil
}

func message(tag, param string) string {
	switch tag {
	case "required":
		return "This field is required"
	case "notblank":
		return "Must not be blank"
	case "min":
		return fmt.Sprintf("Must be at least %s characters", param)
	case "max":
		return fmt.Sprintf("Must be at most %s characters", param)
	case "gte":
		return fmt.Sprintf("Must be greater than or equal to %s", param)
	case "email":
		return "Must be a valid email address"
	case "url":
		return "Must be a valid URL"
	default:
		return fmt.Sprintf("Failed %s validation", tag)
	}
}
