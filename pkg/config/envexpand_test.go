package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("CODEGRAPH_TEST_VAR", "hello")
	got := ExpandEnv([]byte("value: ${CODEGRAPH_TEST_VAR}"))
	assert.Equal(t, "value: hello", string(got))
}

func TestExpandEnv_MissingVarExpandsEmpty(t *testing.T) {
	got := ExpandEnv([]byte("value: ${CODEGRAPH_DEFINITELY_UNSET}"))
	assert.Equal(t, "value: ", string(got))
}
