// Package validate runs struct-tag validation with go-playground/validator
// and flattens the result into a field → message map keyed by JSON name.
//
//	type Input struct {
//	    Email string `json:"email" validate:"required,email"`
//	    Qty   int    `json:"qty"   validate:"gt=0"`
//	}
//	errs := validate.Struct(in) // {"qty": "qty must be greater than 0"}
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	once     sync.Once
	instance *validator.Validate
)

// Validator returns the shared validator instance.
func Validator() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())

		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})

		// Money fields are compared as numbers so gte/lte work on prices.
		v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
			switch d := field.Interface().(type) {
			case decimal.Decimal:
				f, _ := d.Float64()
				return f
			case *decimal.Decimal:
				if d == nil {
					return nil
				}
				f, _ := d.Float64()
				return f
			}
			return nil
		}, decimal.Decimal{}, &decimal.Decimal{})

		instance = v
	})
	return instance
}

// Struct validates v and returns field errors. An empty map means v is valid.
func Struct(v interface{}) map[string]string {
	errs := make(map[string]string)

	err := Validator().Struct(v)
	if err == nil {
		return errs
	}

	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return errs
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		errs["_"] = err.Error()
		return errs
	}

	for _, fe := range fieldErrs {
		key := fieldKey(fe.Namespace())
		if _, exists := errs[key]; exists {
			continue
		}
		errs[key] = message(key, fe)
	}
	return errs
}

// HasErrors reports whether the validation result contains any error.
func HasErrors(errs map[string]string) bool {
	return len(errs) > 0
}

// fieldKey drops the root struct name from a namespace such as
// "checkoutInput.items[0].quantity".
func fieldKey(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func message(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_without":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "url", "http_url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "uuid", "uuid4":
		return fmt.Sprintf("%s must be a valid UUID", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		}
		if fe.Kind() == reflect.Slice || fe.Kind() == reflect.Map {
			return fmt.Sprintf("%s must contain at least %s item(s)", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must not exceed %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must not exceed %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "lt":
		return fmt.Sprintf("%s must be less than %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "eqfield":
		return fmt.Sprintf("%s must match %s", field, strings.ToLower(fe.Param()))
	case "hexadecimal":
		return fmt.Sprintf("%s must be hexadecimal", field)
	}
	return fmt.Sprintf("%s failed the %s rule", field, fe.Tag())
}
