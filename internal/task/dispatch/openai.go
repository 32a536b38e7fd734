package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAI sends the prompt as a single-turn chat completion.
// The session id is passed as the request's user field so the provider can
// group calls from one session.
type OpenAI struct {
	client       *openai.Client
	model        string
	systemPrompt string
	maxTokens    int
}

type OpenAIConfig struct {
	BaseURL      string
	APIKey       string
	Model        string
	SystemPrompt string
	MaxTokens    int
}

func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("dispatcher.openai.model is required")
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if u := strings.TrimSpace(cfg.BaseURL); u != "" {
		oc.BaseURL = strings.TrimRight(u, "/")
	}
	return &OpenAI{
		client:       openai.NewClientWithConfig(oc),
		model:        cfg.Model,
		systemPrompt: strings.TrimSpace(cfg.SystemPrompt),
		maxTokens:    cfg.MaxTokens,
	}, nil
}

func (o *OpenAI) Execute(ctx context.Context, req Request) (Result, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, 2)
	if o.systemPrompt != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: o.systemPrompt})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     o.model,
		Messages:  msgs,
		MaxTokens: o.maxTokens,
		User:      req.SessionID,
	})
	if err != nil {
		var apiErr *openai.APIError
		// An unknown model or a rejected key will not fix itself between runs.
		if errors.As(err, &apiErr) && (apiErr.HTTPStatusCode == http.StatusNotFound || apiErr.HTTPStatusCode == http.StatusUnauthorized) {
			return Result{}, Fatal(err)
		}
		return Result{}, err
	}
	if len(resp.Choices) == 0 {
		return Result{}, fmt.Errorf("openai: empty response")
	}
	return Result{Output: truncate(resp.Choices[0].Message.Content, maxOutput)}, nil
}
