package contract

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]; name != "" && name != "-" {
			return name
		}
		return fld.Name
	})
}

// Validate checks dest against its `validate` struct tags and returns
// nil on success or a canonical validation *APIError on failure. It
// never touches the KV: validation failures here mean the request
// never reaches a component contract.
func Validate(dest any) *APIError {
	err := validate.Struct(dest)
	if err == nil {
		return nil
	}
	return NewValidationError(translateErrors(err))
}

func translateErrors(err error) []FieldError {
	var errs validator.ValidationErrors
	if !asValidationErrors(err, &errs) {
		return []FieldError{{Code: "validation", Message: err.Error()}}
	}
	result := make([]FieldError, len(errs))
	for i, e := range errs {
		result[i] = FieldError{
			Param:   e.Field(),
			Code:    e.Tag(),
			Message: formatMessage(e.Field(), e.Tag(), e.Param()),
		}
	}
	return result
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return false
	}
	*target = verrs
	return true
}

func formatMessage(_, tag, param string) string {
	switch tag {
	case "required":
		return "required"
	case "min":
		return "must be at least " + param
	case "max":
		return "must be at most " + param
	case "ltefield":
		return "must not exceed " + param
	default:
		if param != "" {
			return tag + "=" + param
		}
		return tag
	}
}
