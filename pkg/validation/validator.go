// Package validation registers the custom binding tags used by request DTOs
// and sanitizes free-text input before it is stored.
package validation

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
)

var (
	currencyRegex = regexp.MustCompile(`^[A-Z]{3}$`)
	slugRegex     = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	xssRegex      = regexp.MustCompile(`(?i)(<script|<iframe|<object|<embed|javascript:|vbscript:|on\w+\s*=)`)
)

// Validator wraps validator.Validate with the sanitizer policies.
type Validator struct {
	validate *validator.Validate
	logger   *zap.Logger
	strict   *bluemonday.Policy
	rich     *bluemonday.Policy
}

// NewValidator creates a standalone validator with the custom tags registered.
func NewValidator(logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := &Validator{
		validate: validator.New(),
		logger:   logger,
		strict:   bluemonday.StrictPolicy(),
		rich:     bluemonday.UGCPolicy(),
	}
	Register(v.validate)
	return v
}

// Register installs the json tag name function and the custom tags on v.
func Register(v *validator.Validate) {
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	_ = v.RegisterValidation("currency_code", func(fl validator.FieldLevel) bool {
		return currencyRegex.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slugRegex.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("secure_string", func(fl validator.FieldLevel) bool {
		return !xssRegex.MatchString(fl.Field().String())
	})
}

// RegisterGinValidators installs the custom tags on gin's binding engine so
// ShouldBindJSON reports them.
func RegisterGinValidators() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		Register(v)
	}
}

// ValidateStruct validates s against its struct tags.
func (v *Validator) ValidateStruct(s interface{}) error {
	return v.validate.Struct(s)
}

// SanitizeText strips all markup from plain text fields.
func (v *Validator) SanitizeText(input string) string {
	if input == "" {
		return input
	}
	return strings.TrimSpace(v.strict.Sanitize(input))
}

// SanitizeHTML keeps safe formatting markup and drops scripts, handlers and
// unsafe URLs.
func (v *Validator) SanitizeHTML(input string) string {
	if input == "" {
		return input
	}
	out := v.rich.Sanitize(input)
	if out != input {
		v.logger.Debug("Sanitizer removed markup", zap.Int("before", len(input)), zap.Int("after", len(out)))
	}
	return out
}

// SanitizeMap sanitizes every string value of m in place, recursing into
// nested maps and lists.
func (v *Validator) SanitizeMap(m map[string]interface{}) map[string]interface{} {
	for k, val := range m {
		m[k] = v.sanitizeValue(val)
	}
	return m
}

func (v *Validator) sanitizeValue(val interface{}) interface{} {
	switch t := val.(type) {
	case string:
		return v.SanitizeHTML(t)
	case map[string]interface{}:
		return v.SanitizeMap(t)
	case []interface{}:
		for i := range t {
			t[i] = v.sanitizeValue(t[i])
		}
		return t
	default:
		return val
	}
}

var defaultValidator = NewValidator(nil)

// SanitizeText strips markup using the default validator.
func SanitizeText(input string) string { return defaultValidator.SanitizeText(input) }

// SanitizeHTML sanitizes markup using the default validator.
func SanitizeHTML(input string) string { return defaultValidator.SanitizeHTML(input) }

// SanitizeMap sanitizes a decoded JSON object using the default validator.
func SanitizeMap(m map[string]interface{}) map[string]interface{} {
	return defaultValidator.SanitizeMap(m)
}

// ContainsXSS reports whether input carries an obvious script injection.
func ContainsXSS(input string) bool { return xssRegex.MatchString(input) }
