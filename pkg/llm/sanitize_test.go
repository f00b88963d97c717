package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeJSON_ExtractsFencedBlock(t *testing.T) {
	raw := "Here you go:\n```json\n{\"pois\":[{\"name\":\"foo\"}]}\n```\nDone."
	cleaned := sanitizeJSON(raw)

	var out struct {
		POIs []struct {
			Name string `json:"name"`
		} `json:"pois"`
	}
	require.NoError(t, json.Unmarshal([]byte(cleaned), &out))
	assert.Equal(t, "foo", out.POIs[0].Name)
}

func TestSanitizeJSON_StripsTrailingCommas(t *testing.T) {
	raw := `{"pois": [{"name": "a"}, {"name": "b"},],}`
	cleaned := sanitizeJSON(raw)

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(cleaned), &out))
}

func TestSanitizeJSON_BalancesTruncatedBrackets(t *testing.T) {
	raw := `{"pois": [{"name": "a"}, {"name": "b"`
	cleaned := sanitizeJSON(raw)
	assert.Equal(t, `{"pois": [{"name": "a"}, {"name": "b"}]}`, cleaned)
}

func TestSanitizeJSON_LeavesCommaInsideStringAlone(t *testing.T) {
	raw := `{"summary": "first, second"}`
	cleaned := sanitizeJSON(raw)

	var out map[string]string
	require.NoError(t, json.Unmarshal([]byte(cleaned), &out))
	assert.Equal(t, "first, second", out["summary"])
}

func TestSanitizeJSON_NoopOnCleanInput(t *testing.T) {
	raw := `{"ok":true}`
	assert.Equal(t, raw, sanitizeJSON(raw))
}
