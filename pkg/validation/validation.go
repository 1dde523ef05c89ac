// Package validation checks request and draft structs with go-playground
// validator tags and reports failures as apperror validation errors.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator"

	"github.com/bizsuite/server/pkg/apperror"
)

var (
	once     sync.Once
	instance *validator.Validate
)

func get() *validator.Validate {
	once.Do(func() {
		instance = validator.New()
		instance.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
	})
	return instance
}

// Struct validates v and returns an apperror.ErrValidation listing each
// offending field under details.fields, or nil.
func Struct(v any) error {
	err := get().Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperror.ErrValidation.WithInternal(err)
	}

	fields := make(map[string]any, len(verrs))
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := describe(fe)
		fields[fe.Field()] = msg
		msgs = append(msgs, fe.Field()+" "+msg)
	}
	return apperror.NewValidation(strings.Join(msgs, "; ")).
		WithDetails(map[string]any{"fields": fields})
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max", "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}

// EchoValidator adapts Struct to echo.Validator.
type EchoValidator struct{}

func (EchoValidator) Validate(i any) error {
	return Struct(i)
}
