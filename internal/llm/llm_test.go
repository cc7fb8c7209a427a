package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractSQL(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  string
	}{
		{
			name:  "sql fence",
			reply: "Here you go:\n```sql\nSELECT id FROM lots\n```\nEnjoy",
			want:  "SELECT id FROM lots",
		},
		{
			name:  "plain fence",
			reply: "```\nSELECT 1\n```",
			want:  "SELECT 1",
		},
		{
			name:  "upper case language tag",
			reply: "```SQL\nSELECT 2\n```",
			want:  "SELECT 2",
		},
		{
			name:  "no fence",
			reply: "  SELECT 3  ",
			want:  "SELECT 3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractSQL(tt.reply))
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var out struct {
		Intent string `json:"intent"`
	}

	require.NoError(t, DecodeJSON("Sure! {\"intent\": \"generic\"} hope that helps", &out))
	assert.Equal(t, "generic", out.Intent)

	err := DecodeJSON("no json here", &out)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedResponse))
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestClient_Complete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/messages"))
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-test",
			"content": [{"type": "text", "text": "`+"```sql\\nSELECT 1\\n```"+`"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 4}
		}`)
	}))
	defer srv.Close()

	c, err := New(Config{APIKey: "test-key", BaseURL: srv.URL, Model: "claude-test"}, nil)
	require.NoError(t, err)

	reply, err := c.Complete(context.Background(), Request{System: "sys", Prompt: "how many lots?"})
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", ExtractSQL(reply))

	assert.Equal(t, "claude-test", got["model"])
	assert.Equal(t, "sys", got["system"])
	assert.EqualValues(t, DefaultMaxTokens, got["max_tokens"])
}

func TestClient_CompleteErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			body:   `{"type":"error","error":{"type":"api_error","message":"boom"}}`,
		},
		{
			name:    "no text block",
			status:  http.StatusOK,
			body:    `{"id":"msg_2","type":"message","role":"assistant","content":[],"usage":{"input_tokens":1,"output_tokens":0}}`,
			wantErr: ErrMalformedResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			c, err := New(Config{APIKey: "k", BaseURL: srv.URL}, nil)
			require.NoError(t, err)

			_, err = c.Complete(context.Background(), Request{Prompt: "q"})
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c, err := New(Config{APIKey: "k", BaseURL: srv.URL, Timeout: 50 * time.Millisecond}, nil)
	require.NoError(t, err)

	start := time.Now()
	_, err = c.Complete(context.Background(), Request{Prompt: "q"})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}
