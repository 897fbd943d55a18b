package config

import (
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

func ValidateAbsPath(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return s != "" && path.IsAbs(s)
}

func ValidateLocalpath(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return s != "" && filepath.IsLocal(s)
}

func ValidateIdentifier(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return true
	}

	matched, err := regexp.MatchString(`^[A-Za-z_][A-Za-z0-9_]*$`, s)
	if err != nil {
		return false
	}

	return matched
}

// ValidatePathPattern accepts relative queue key patterns that stay inside the
// store root and include the {id} placeholder, so two entries never share a key.
func ValidatePathPattern(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return true
	}

	if !filepath.IsLocal(s) || strings.HasPrefix(s, "/") {
		return false
	}

	return strings.Contains(s, "{id}")
}

func ValidateCronSpec(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return true
	}

	_, err := cron.ParseStandard(s)
	return err == nil
}
