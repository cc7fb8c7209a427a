// Package llm wraps the generative model used by the resolver, planner and
// SQL generator. Callers depend on the Completer interface; the Anthropic
// client is the production implementation.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrNotConfigured is returned when no API key is available.
	ErrNotConfigured = errors.New("llm provider not configured")

	// ErrMalformedResponse is returned when the model reply cannot be
	// decoded into the expected shape.
	ErrMalformedResponse = errors.New("malformed llm response")
)

// Request is a single-turn completion request.
type Request struct {
	System    string
	Prompt    string
	MaxTokens int
}

// Completer produces a text completion for a prompt.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

var fencedSQLRe = regexp.MustCompile("(?is)```(?:sql)?\\s*(.*?)```")

// ExtractSQL returns the body of the first fenced code block, or the
// trimmed reply when there is none.
func ExtractSQL(reply string) string {
	if m := fencedSQLRe.FindStringSubmatch(reply); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(reply)
}

// ExtractJSON returns the span from the first '{' to the last '}'.
func ExtractJSON(reply string) string {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start >= 0 && end > start {
		return reply[start : end+1]
	}
	return reply
}

// DecodeJSON extracts the JSON object from reply and unmarshals it into v.
func DecodeJSON(reply string, v any) error {
	if err := json.Unmarshal([]byte(ExtractJSON(reply)), v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}
