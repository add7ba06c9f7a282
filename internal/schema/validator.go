// Package schema validates API requests and outbound events against the
// struct tags declared on them.
package schema

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"recording-transcription-service/internal/errs"
)

// Validator checks `validate` tags and reports failures by JSON field name.
type Validator struct {
	v *validator.Validate
}

func New() *Validator {
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
	return &Validator{v: v}
}

// Validate returns an errs.KindValidation error listing every failed field.
func (s *Validator) Validate(value any) error {
	err := s.v.Struct(value)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errs.New(errs.KindValidation, "schema.validate", err)
	}

	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			problems = append(problems, fmt.Sprintf("%s: %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			problems = append(problems, fmt.Sprintf("%s: %s", fe.Namespace(), fe.Tag()))
		}
	}
	return errs.Newf(errs.KindValidation, "schema.validate", "invalid %s", strings.Join(problems, ", "))
}
