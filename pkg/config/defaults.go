package config

import (
	"time"

	"github.com/codegraph-dev/codegraph/pkg/models"
)

// defaultRunOptions returns the built-in defaults applied before a user's
// YAML is merged on top (spec.md §6's RunOptions defaults).
func defaultRunOptions() *models.RunOptions {
	return &models.RunOptions{
		Ignore:              nil,
		MaxFileBytes:        1_048_576,
		MaxLLMConcurrency:   16,
		AcceptThreshold:     0.5,
		QuietWindow:         30 * time.Second,
		SpecialFilePatterns: models.DefaultSpecialFilePatterns(),
		Queue: models.QueueOptions{
			Driver: "postgres",
		},
	}
}
