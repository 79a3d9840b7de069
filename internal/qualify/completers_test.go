package qualify

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadpipe/pkg/anthropic"
	"github.com/sells-group/leadpipe/pkg/openrouter"
)

func TestOpenRouterCompleter_Complete(t *testing.T) {
	t.Parallel()

	client := new(mockOpenRouterClient)
	client.On("ChatCompletion", mock.Anything, mock.MatchedBy(func(req openrouter.ChatCompletionRequest) bool {
		return req.Model == "anthropic/claude-sonnet-4.5" &&
			len(req.Messages) == 2 &&
			req.Messages[0].Role == "system" &&
			req.Messages[0].Content == "sys prompt" &&
			req.Messages[1].Role == "user" &&
			req.Messages[1].Content == "user prompt" &&
			req.Temperature != nil && *req.Temperature == 0.1 &&
			req.MaxTokens != nil && *req.MaxTokens == 1024
	})).Return(&openrouter.ChatCompletionResponse{
		Choices: []openrouter.Choice{
			{Message: openrouter.Message{Role: "assistant", Content: `{"decision":"ACCEPT"}`}},
		},
	}, nil)

	c := NewOpenRouterCompleter(client, "anthropic/claude-sonnet-4.5")
	out, err := c.Complete(context.Background(), "sys prompt", "user prompt")

	require.NoError(t, err)
	assert.Equal(t, `{"decision":"ACCEPT"}`, out)
	client.AssertExpectations(t)
}

func TestOpenRouterCompleter_NoChoices(t *testing.T) {
	t.Parallel()

	client := new(mockOpenRouterClient)
	client.On("ChatCompletion", mock.Anything, mock.Anything).
		Return(&openrouter.ChatCompletionResponse{}, nil)

	c := NewOpenRouterCompleter(client, "")
	_, err := c.Complete(context.Background(), "sys", "user")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestOpenRouterCompleter_Error(t *testing.T) {
	t.Parallel()

	client := new(mockOpenRouterClient)
	client.On("ChatCompletion", mock.Anything, mock.Anything).
		Return(nil, eris.New("unexpected status 502"))

	c := NewOpenRouterCompleter(client, "")
	_, err := c.Complete(context.Background(), "sys", "user")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestAnthropicCompleter_Complete(t *testing.T) {
	t.Parallel()

	client := new(mockAnthropicClient)
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == "claude-sonnet-4-5-20250929" &&
			len(req.System) == 1 && req.System[0].Text == "sys prompt" &&
			len(req.Messages) == 1 && req.Messages[0].Role == "user"
	})).Return(&anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{
			{Type: "text", Text: `{"decision":`},
			{Type: "text", Text: `"REJECT"}`},
		},
	}, nil)

	c := NewAnthropicCompleter(client, "claude-sonnet-4-5-20250929")
	out, err := c.Complete(context.Background(), "sys prompt", "user prompt")

	require.NoError(t, err)
	assert.Equal(t, `{"decision":"REJECT"}`, out)
	client.AssertExpectations(t)
}

func TestAnthropicCompleter_Error(t *testing.T) {
	t.Parallel()

	client := new(mockAnthropicClient)
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, eris.New("create message: api error"))

	c := NewAnthropicCompleter(client, "claude-sonnet-4-5-20250929")
	_, err := c.Complete(context.Background(), "sys", "user")

	require.Error(t, err)
}
