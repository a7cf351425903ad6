// Package llm streams assistant replies from Cerebras through its OpenAI-compatible API.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Rituearth/SADDIE-2.0/internal/agent"
	openai "github.com/sashabaranov/go-openai"
)

const cerebrasBaseURL = "https://api.cerebras.ai/v1"

type CerebrasClient struct {
	HTTPClient   *http.Client
	APIKey       string
	Model        string
	BaseURL      string
	SystemPrompt string
	Temperature  float32
}

func NewCerebrasClient(apiKey, model, systemPrompt string) *CerebrasClient {
	return &CerebrasClient{
		// no overall timeout: replies stream; the caller's context bounds the turn
		HTTPClient:   &http.Client{Transport: &http.Transport{ResponseHeaderTimeout: 15 * time.Second}},
		APIKey:       apiKey,
		Model:        model,
		BaseURL:      cerebrasBaseURL,
		SystemPrompt: systemPrompt,
		Temperature:  0.7,
	}
}

// Stream opens a streamed chat completion for text on top of history.
func (c *CerebrasClient) Stream(ctx context.Context, history []agent.Message, text string) (agent.Stream, error) {
	if c.APIKey == "" {
		return nil, fmt.Errorf("cerebras api key missing")
	}
	cfg := openai.DefaultConfig(c.APIKey)
	cfg.BaseURL = c.BaseURL
	if c.HTTPClient != nil {
		cfg.HTTPClient = c.HTTPClient
	}
	client := openai.NewClientWithConfig(cfg)

	stream, err := client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       c.Model,
		Messages:    c.messages(history, text),
		Temperature: c.Temperature,
		Stream:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("cerebras: open stream: %w", err)
	}
	return &replyStream{stream: stream}, nil
}

func (c *CerebrasClient) messages(history []agent.Message, text string) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	if c.SystemPrompt != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: c.SystemPrompt})
	}
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if m.Role == agent.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Text})
	}
	return append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text})
}

type replyStream struct {
	stream *openai.ChatCompletionStream
}

// Recv skips role-only and empty deltas so every fragment carries text.
func (s *replyStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", fmt.Errorf("cerebras: stream: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if content := resp.Choices[0].Delta.Content; content != "" {
			return content, nil
		}
	}
}

func (s *replyStream) Close() error { return s.stream.Close() }
