// Package llm talks to an OpenAI-compatible chat-completions endpoint.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Gateway returns the completion text for one system/user message pair.
type Gateway interface {
	Complete(ctx context.Context, system, user string, temperature float64) (string, error)
}

var (
	// ErrUpstreamUnavailable matches every transport or status failure.
	ErrUpstreamUnavailable = errors.New("language model unavailable")
	// ErrMalformedResponse marks a 2xx response without choices[0].message.content.
	ErrMalformedResponse = errors.New("malformed language model response")
)

// UpstreamError is a failed call to the endpoint. StatusCode is zero when
// no response was received.
type UpstreamError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("chat completion request failed: %v", e.Err)
	}
	return fmt.Sprintf("chat completion failed status=%d body=%s", e.StatusCode, e.Body)
}

func (e *UpstreamError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrUpstreamUnavailable}
	}
	return []error{ErrUpstreamUnavailable, e.Err}
}

// Role values used in a chat request.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message *struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}
