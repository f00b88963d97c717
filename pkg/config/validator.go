package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/codegraph-dev/codegraph/pkg/models"
)

var validate = validator.New()

// Validate checks every struct tag on opts and wraps the first failure
// (if any) as a *ValidationError for a clearer operator-facing message.
func Validate(opts *models.RunOptions) error {
	if err := validate.Struct(opts); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			return fmt.Errorf("%w: %w", ErrValidationFailed, &ValidationError{
				Field: first.Namespace(),
				Err:   fmt.Errorf("failed '%s' (value=%v)", first.Tag(), first.Value()),
			})
		}
		return fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	for i, p := range opts.SpecialFilePatterns {
		if p.Regex == "" || p.Type == "" {
			return fmt.Errorf("%w: special_file_patterns[%d] requires both regex and type", ErrValidationFailed, i)
		}
	}

	return nil
}
