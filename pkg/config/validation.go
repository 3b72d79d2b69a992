package config

import (
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("octalmode", func(fl validator.FieldLevel) bool {
		_, err := parseMode(fl.Field().String())
		return err == nil
	})
}

// Validate validates the configuration using struct tags and custom rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for complex rules
// that cannot be expressed in tags.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// Returns an error describing validation failures.
func Validate(cfg *Config) error {
	// Run struct tag validation
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	// Custom validation rules that can't be expressed in tags
	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	// Validate share names are unique
	names := make(map[string]bool)
	for i, sc := range cfg.Shares {
		if names[sc.Name] {
			return fmt.Errorf("shares[%d]: duplicate share name %q", i, sc.Name)
		}
		names[sc.Name] = true
	}

	// Validate each share carries the section for its type
	for i := range cfg.Shares {
		sc := &cfg.Shares[i]
		if sc.section() == nil {
			return fmt.Errorf("shares[%d]: type %q requires a %q section", i, sc.Type, sc.Type)
		}
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		// Return the first validation error with context
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}

// parseMode parses an octal permission string such as "0644".
func parseMode(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid mode %q: %w", s, err)
	}
	if v > 0o7777 {
		return 0, fmt.Errorf("invalid mode %q: out of range", s)
	}
	return uint32(v), nil
}
