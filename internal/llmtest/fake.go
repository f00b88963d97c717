// Package llmtest provides a scripted llm.Client fake for worker tests.
package llmtest

import (
	"context"
	"encoding/json"

	"github.com/codegraph-dev/codegraph/pkg/models"
)

// Client returns a fixed JSON response (or error) from CompleteJSON,
// recording every prompt it was given.
type Client struct {
	Response string
	Err      error
	Prompts  []string
}

// New builds a Client whose CompleteJSON unmarshals response (marshaled
// from the given value) into the caller's out pointer.
func New(response any) *Client {
	raw, err := json.Marshal(response)
	if err != nil {
		panic(err)
	}
	return &Client{Response: string(raw)}
}

func (c *Client) Complete(ctx context.Context, prompt, schemaHint string) (string, models.TokenStats, error) {
	c.Prompts = append(c.Prompts, prompt)
	return c.Response, models.TokenStats{}, c.Err
}

func (c *Client) CompleteJSON(ctx context.Context, prompt string, out any) (models.TokenStats, error) {
	c.Prompts = append(c.Prompts, prompt)
	if c.Err != nil {
		return models.TokenStats{}, c.Err
	}
	return models.TokenStats{}, json.Unmarshal([]byte(c.Response), out)
}
