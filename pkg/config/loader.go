// Package config loads and validates RunOptions: a YAML document,
// environment-expanded, merged over built-in defaults, and validated —
// the same loading discipline the teacher uses for its own YAML config
// (dario.cat/mergo + go-playground/validator/v10 + os.ExpandEnv), scoped
// down to the single RunOptions struct this pipeline needs.
package config

import (
	"fmt"
	"os"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/codegraph-dev/codegraph/pkg/models"
)

// Load reads the YAML file at path, expands environment variables, merges
// it over the built-in defaults, validates the result, and returns a ready
// RunOptions.
func Load(path string) (*models.RunOptions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewLoadError(path, ErrConfigNotFound)
		}
		return nil, NewLoadError(path, err)
	}

	return LoadBytes(data)
}

// LoadBytes parses an in-memory YAML document the same way Load does,
// useful for tests and for configuration supplied over a control plane
// instead of a file.
func LoadBytes(data []byte) (*models.RunOptions, error) {
	expanded := ExpandEnv(data)

	var user models.RunOptions
	if err := yaml.Unmarshal(expanded, &user); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	opts := defaultRunOptions()
	if err := mergo.Merge(opts, user, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("merge run options: %w", err)
	}

	if len(user.SpecialFilePatterns) > 0 {
		opts.SpecialFilePatterns = user.SpecialFilePatterns
	}

	if err := Validate(opts); err != nil {
		return nil, err
	}

	return opts, nil
}
