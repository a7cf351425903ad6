package agent

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

const maxErrorDetail = 200

// apologyFor turns an LLM failure into the line spoken to the user.
func apologyFor(err error) string {
	if unauthorized(err) {
		return "AI service configuration error (API Key)."
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return "Sorry, I'm having trouble connecting. Please try again."
	}
	msg := err.Error()
	if len(msg) > maxErrorDetail {
		msg = msg[:maxErrorDetail] + "..."
	}
	return "Sorry, an error occurred: " + msg
}

func unauthorized(err error) bool {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}
