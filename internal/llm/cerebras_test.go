package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Rituearth/SADDIE-2.0/internal/agent"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// clientFor points c at srv while keeping the production base URL.
func clientFor(srv *httptest.Server) *http.Client {
	return &http.Client{Timeout: 2 * time.Second, Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		req.URL.Scheme = "http"
		req.URL.Host = srv.Listener.Addr().String()
		return http.DefaultTransport.RoundTrip(req)
	})}
}

func sseChunk(w http.ResponseWriter, content string) {
	body, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion.chunk",
		"choices": []map[string]any{{"index": 0, "delta": map[string]string{"content": content}}},
	})
	fmt.Fprintf(w, "data: %s\n\n", body)
}

func TestCerebras_NoKey(t *testing.T) {
	c := NewCerebrasClient("", "model", "")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Stream(ctx, nil, "hi")
	assert.Error(t, err)
}

func TestCerebras_StreamsFragments(t *testing.T) {
	var got openai.ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		_ = json.NewDecoder(r.Body).Decode(&got)

		w.Header().Set("Content-Type", "text/event-stream")
		sseChunk(w, "")
		sseChunk(w, "Hello")
		sseChunk(w, " there.")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := NewCerebrasClient("key", "llama3.1-8b", "You are Saddie.")
	c.HTTPClient = clientFor(srv)

	history := []agent.Message{
		{Role: agent.RoleUser, Text: "hi"},
		{Role: agent.RoleAssistant, Text: "Hello! [INTERRUPTED BY USER]"},
	}
	st, err := c.Stream(context.Background(), history, "one soda")
	require.NoError(t, err)
	defer st.Close()

	var frags []string
	for {
		f, err := st.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		frags = append(frags, f)
	}
	assert.Equal(t, []string{"Hello", " there."}, frags)

	assert.True(t, got.Stream)
	assert.Equal(t, "llama3.1-8b", got.Model)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, openai.ChatMessageRoleSystem, got.Messages[0].Role)
	assert.Equal(t, openai.ChatMessageRoleAssistant, got.Messages[2].Role)
	assert.Equal(t, "one soda", got.Messages[3].Content)
}

func TestCerebras_UnauthorizedIsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Wrong API Key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	c := NewCerebrasClient("bad", "model", "")
	c.HTTPClient = clientFor(srv)
	_, err := c.Stream(context.Background(), nil, "hi")
	require.Error(t, err)

	var apiErr *openai.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.HTTPStatusCode)
}
