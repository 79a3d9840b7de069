package qualify

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadpipe/pkg/anthropic"
	"github.com/sells-group/leadpipe/pkg/openrouter"
)

// completionMaxTokens bounds the verdict completion; a verdict object is
// small and a runaway completion is a model failure, not useful output.
const completionMaxTokens = 1024

// completionTemperature keeps verdicts near-deterministic.
const completionTemperature = 0.1

// openrouterCompleter adapts the OpenRouter chat API to the Completer
// interface.
type openrouterCompleter struct {
	client openrouter.Client
	model  string
}

// NewOpenRouterCompleter wraps an OpenRouter client as a Completer. An empty
// model falls through to the client's configured default.
func NewOpenRouterCompleter(client openrouter.Client, model string) Completer {
	return &openrouterCompleter{client: client, model: model}
}

func (c *openrouterCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	temp := completionTemperature
	maxTokens := completionMaxTokens
	resp, err := c.client.ChatCompletion(ctx, openrouter.ChatCompletionRequest{
		Model: c.model,
		Messages: []openrouter.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", eris.New("qualify: completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// anthropicCompleter adapts the Anthropic Messages API to the Completer
// interface.
type anthropicCompleter struct {
	client anthropic.Client
	model  string
}

// NewAnthropicCompleter wraps an Anthropic client as a Completer.
func NewAnthropicCompleter(client anthropic.Client, model string) Completer {
	return &anthropicCompleter{client: client, model: model}
}

func (c *anthropicCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	temp := completionTemperature
	resp, err := c.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       c.model,
		MaxTokens:   completionMaxTokens,
		System:      []anthropic.SystemBlock{{Text: system}},
		Messages:    []anthropic.Message{{Role: "user", Content: user}},
		Temperature: &temp,
	})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
