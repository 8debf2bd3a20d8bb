// Package validation wraps go-playground validator with the custom rules of
// the PhishGuard forms.
package validation

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	looseEmailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	deviceIDPattern   = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)
)

var (
	once     sync.Once
	validate *validator.Validate
)

// Validator returns the shared validator. Field names in errors are the json
// names of the fields.
func Validator() *validator.Validate {
	once.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			switch name {
			case "-":
				return ""
			case "":
				return f.Name
			}
			return name
		})

		// Register custom validators
		mustRegister(v, "loose_email", validateLooseEmail)
		mustRegister(v, "abs_url", validateAbsURL)
		mustRegister(v, "device_id", validateDeviceID)
		validate = v
	})
	return validate
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register validation %q: %v", tag, err))
	}
}

// Struct validates s.
func Struct(s any) error {
	return Validator().Struct(s)
}

// Var validates a single value against tag.
func Var(field any, tag string) error {
	return Validator().Var(field, tag)
}

// validateLooseEmail accepts anything shaped like local@domain.tld.
func validateLooseEmail(fl validator.FieldLevel) bool {
	return looseEmailPattern.MatchString(fl.Field().String())
}

// validateAbsURL requires a scheme and a host.
func validateAbsURL(fl validator.FieldLevel) bool {
	u, err := url.Parse(fl.Field().String())
	return err == nil && u.Scheme != "" && u.Host != ""
}

func validateDeviceID(fl validator.FieldLevel) bool {
	return deviceIDPattern.MatchString(fl.Field().String())
}

// Fields maps each failing field to the tag it failed. It returns nil when
// err is not a validation failure.
func Fields(err error) map[string]string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return nil
	}
	out := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		out[fe.Field()] = fe.Tag()
	}
	return out
}

// Messages maps each failing field to a message. messages is keyed by
// "field.tag"; failures without an entry get a generic message.
func Messages(err error, messages map[string]string) map[string]string {
	fields := Fields(err)
	if fields == nil {
		return nil
	}
	out := make(map[string]string, len(fields))
	for field, tag := range fields {
		if msg, ok := messages[field+"."+tag]; ok {
			out[field] = msg
			continue
		}
		out[field] = fmt.Sprintf("The %s field is invalid", field)
	}
	return out
}
