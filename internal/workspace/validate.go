package workspace

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// specValidate checks request structs. Field names are reported by their json tag.
var specValidate *validator.Validate

func init() {
	specValidate = validator.New()
	specValidate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

// validateSpec maps validator failures onto ErrMissingField or, for anything under refs, ErrInvalidRefs.
func validateSpec(what string, spec any) error {
	err := specValidate.Struct(spec)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %v", ErrMissingField, err)
	}

	fe := verrs[0]
	if strings.Contains(fe.Namespace(), ".refs[") {
		return fmt.Errorf("%w: %s failed '%s' check", ErrInvalidRefs, fe.Field(), fe.Tag())
	}
	if fe.Tag() == "required" {
		return fmt.Errorf("%w: the '%s' field is required when creating a %s", ErrMissingField, fe.Field(), what)
	}
	return fmt.Errorf("%w: the '%s' field of a %s failed '%s=%s'", ErrMissingField, fe.Field(), what, fe.Tag(), fe.Param())
}
