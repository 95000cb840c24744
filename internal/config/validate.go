package config

import (
	stderrors "errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"catalog-importer/internal/common/errors"
	"catalog-importer/internal/validation"
)

var (
	structValidator     *validator.Validate
	structValidatorOnce sync.Once
)

// fieldRules validates the struct tags and names fields by their env tag
func fieldRules() *validator.Validate {
	structValidatorOnce.Do(func() {
		structValidator = validator.New(validator.WithRequiredStructEnabled())
		structValidator.RegisterTagNameFunc(func(f reflect.StructField) string {
			if name := f.Tag.Get("env"); name != "" {
				return name
			}
			return f.Name
		})
	})
	return structValidator
}

// Validate checks every setting and reports all problems at once as a
// config error.
func (c *Config) Validate() error {
	v := validation.NewValidator()

	for _, msg := range c.parseErrors {
		v.Check(false, msg)
	}

	if err := fieldRules().Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !stderrors.As(err, &fieldErrs) {
			return errors.ConfigError(err.Error())
		}
		for _, fe := range fieldErrs {
			v.Check(false, describe(fe))
		}
	}

	switch c.StoreType {
	case "sqlite":
		v.RequireString(c.DatabasePath, "DATABASE_PATH")
	case "postgres":
		v.RequireString(c.PostgresURL, "POSTGRES_URL")
		v.ValidateIf(c.PostgresURL != "", func() error {
			u, err := url.Parse(c.PostgresURL)
			if err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
				return fmt.Errorf("POSTGRES_URL must be a postgres:// URL")
			}
			return nil
		})
	}

	if c.EnrichmentEnabled() {
		v.RequireURL(strings.ReplaceAll(c.EnrichURL, "{{.sku}}", "sku"), "ENRICH_URL")
		switch c.EnrichAuthType {
		case "bearer":
			v.RequireString(c.EnrichToken, "ENRICH_TOKEN")
		case "basic":
			v.RequireString(c.EnrichUsername, "ENRICH_USERNAME")
		case "api_key":
			v.RequireString(c.EnrichAPIKey, "ENRICH_API_KEY")
		}
	}

	if err := v.Error(); err != nil {
		return errors.ConfigError(err.Error())
	}
	return nil
}

func describe(fe validator.FieldError) string {
	name := fe.Field()
	switch fe.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", name)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", name, strings.Join(strings.Fields(fe.Param()), ", "))
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", name, fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", name, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", name, fe.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", name)
	default:
		return fmt.Sprintf("%s failed %s validation", name, fe.Tag())
	}
}
