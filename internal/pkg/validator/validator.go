package validator

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Details turns a binding error for req into the error details payload:
// {"field_errors": {json_name: message}}. It returns nil for errors that are
// not validation failures, such as a body that is not JSON at all.
func Details(err error, req any) map[string]any {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}

	reqType := reflect.TypeOf(req)
	if reqType != nil && reqType.Kind() == reflect.Pointer {
		reqType = reqType.Elem()
	}

	fieldErrors := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		name := fe.Field()
		if reqType != nil && reqType.Kind() == reflect.Struct {
			if field, ok := reqType.FieldByName(fe.StructField()); ok {
				if tag := field.Tag.Get("json"); tag != "" && tag != "-" {
					name = strings.Split(tag, ",")[0]
				}
			}
		}
		fieldErrors[name] = message(fe)
	}
	return map[string]any{"field_errors": fieldErrors}
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "is invalid"
	}
}
