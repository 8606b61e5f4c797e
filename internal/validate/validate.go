package validate

import (
	"errors"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var v *validator.Validate

const notBlankTag = "notblank"

func init() {
	v = validator.New(validator.WithRequiredStructEnabled())

	// Use JSON tag names for errors instead of Go struct names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation(notBlankTag, notBlank)
}

func notBlank(fl validator.FieldLevel) bool {
	field := fl.Field()
	switch field.Kind() {
	case reflect.String:
		return strings.TrimSpace(field.String()) != ""
	case reflect.Slice, reflect.Map, reflect.Array:
		return field.Len() > 0
	case reflect.Pointer:
		return !field.IsNil()
	default:
		return !field.IsZero()
	}
}

func Struct(s interface{}) error {
	return v.Struct(s)
}

// Code turns a validation error into an API error code such as
// "missing_class_id" or "invalid_due_at". Other errors map to invalid_request.
func Code(err error) string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return "invalid_request"
	}
	first := errs[0]
	field := snake(first.Field())
	switch first.Tag() {
	case "required", notBlankTag:
		return "missing_" + field
	default:
		return "invalid_" + field
	}
}

func snake(name string) string {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
