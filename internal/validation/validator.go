// Package validation holds the error accumulator used for configuration
// checks and the product record rules.
package validation

import (
	"fmt"
	"net/url"
	"strings"
)

// Validator accumulates validation errors
type Validator struct {
	messages []string
	prefix   string
}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{messages: make([]string, 0)}
}

// NewValidatorWithPrefix creates a new validator with a prefix for error messages
func NewValidatorWithPrefix(prefix string) *Validator {
	return &Validator{messages: make([]string, 0), prefix: prefix}
}

// Check records msg when ok is false
func (v *Validator) Check(ok bool, msg string) *Validator {
	if !ok {
		v.addError("%s", msg)
	}
	return v
}

// RequireString validates that a string is not empty
func (v *Validator) RequireString(value, name string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.addError("%s is required", name)
	}
	return v
}

// RequirePositive validates that an integer is positive
func (v *Validator) RequirePositive(value int, name string) *Validator {
	if value <= 0 {
		v.addError("%s must be positive", name)
	}
	return v
}

// RequireNonNegative validates that an integer is non-negative
func (v *Validator) RequireNonNegative(value int, name string) *Validator {
	if value < 0 {
		v.addError("%s must be non-negative", name)
	}
	return v
}

// RequireURL validates that a string is an absolute http(s) URL
func (v *Validator) RequireURL(value, name string) *Validator {
	if value == "" {
		v.addError("%s is required", name)
		return v
	}

	u, err := url.Parse(value)
	if err != nil {
		v.addError("%s must be a valid URL: %v", name, err)
		return v
	}

	if u.Scheme == "" || u.Host == "" {
		v.addError("%s must be a complete URL with scheme and host", name)
	}

	return v
}

// RequireOneOf validates that a value is one of the allowed values
func (v *Validator) RequireOneOf(value string, allowed []string, name string) *Validator {
	if value == "" {
		v.addError("%s is required", name)
		return v
	}
	for _, a := range allowed {
		if value == a {
			return v
		}
	}
	v.addError("%s must be one of: %s", name, strings.Join(allowed, ", "))
	return v
}

// Validate runs a custom validation function
func (v *Validator) Validate(fn func() error) *Validator {
	if err := fn(); err != nil {
		v.addError("%s", err.Error())
	}
	return v
}

// ValidateIf runs a validation function if a condition is true
func (v *Validator) ValidateIf(condition bool, fn func() error) *Validator {
	if condition {
		return v.Validate(fn)
	}
	return v
}

func (v *Validator) addError(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if v.prefix != "" {
		msg = fmt.Sprintf("%s: %s", v.prefix, msg)
	}
	v.messages = append(v.messages, msg)
}

// HasErrors returns true if there are validation errors
func (v *Validator) HasErrors() bool {
	return len(v.messages) > 0
}

// Messages returns the collected messages in the order they were added
func (v *Validator) Messages() []string {
	out := make([]string, len(v.messages))
	copy(out, v.messages)
	return out
}

// Error returns the validation error or nil if there are no errors
func (v *Validator) Error() error {
	switch len(v.messages) {
	case 0:
		return nil
	case 1:
		return fmt.Errorf("%s", v.messages[0])
	default:
		return fmt.Errorf("validation failed: %s", strings.Join(v.messages, "; "))
	}
}

// Merge merges errors from another validator
func (v *Validator) Merge(other *Validator) *Validator {
	if other != nil && other.HasErrors() {
		v.messages = append(v.messages, other.messages...)
	}
	return v
}
