package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBytes_AppliesDefaults(t *testing.T) {
	yaml := []byte(`
llm:
  endpoint: https://llm.internal/v1
  api_key: ${TEST_LLM_API_KEY}
  model: gpt-test
rel_store:
  dsn: postgres://localhost/codegraph
graph_store:
  uri: bolt://localhost:7687
  user: neo4j
  password: ${TEST_NEO4J_PASSWORD}
queue:
  driver: postgres
  url: postgres://localhost/codegraph
`)
	t.Setenv("TEST_LLM_API_KEY", "secret-key")
	t.Setenv("TEST_NEO4J_PASSWORD", "secret-pass")

	opts, err := LoadBytes(yaml)
	require.NoError(t, err)

	assert.Equal(t, "secret-key", opts.LLM.APIKey)
	assert.Equal(t, "secret-pass", opts.GraphStore.Password)
	assert.Equal(t, int64(1_048_576), opts.MaxFileBytes)
	assert.Equal(t, 16, opts.MaxLLMConcurrency)
	assert.InDelta(t, 0.5, opts.AcceptThreshold, 1e-9)
	assert.NotEmpty(t, opts.SpecialFilePatterns)
}

func TestLoadBytes_RejectsMissingRequiredFields(t *testing.T) {
	_, err := LoadBytes([]byte("llm:\n  endpoint: \"\"\n"))
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/run.yaml")
	assert.ErrorIs(t, err, ErrConfigNotFound)
}
