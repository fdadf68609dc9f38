package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateChatCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "https://example.com", r.Header.Get("HTTP-Referer"))

		var req ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)

		json.NewEncoder(w).Encode(ChatResponse{Choices: []ChatChoice{{
			Message:      ChatMessage{Role: "assistant", Content: `{"reasoning":"ok","trade_decisions":[]}`},
			FinishReason: "stop",
		}}})
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, APIKey: "test-key", Referer: "https://example.com"}
	resp, err := c.CreateChatCompletion(context.Background(), ChatRequest{
		Model: "test-model",
		Messages: []ChatMessage{
			{Role: "system", Content: "sys"},
			{Role: "user", Content: "ctx"},
		},
	})
	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)
	assert.Contains(t, resp.Choices[0].Message.Content, "trade_decisions")
}

func TestCreateChatCompletionHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(422)
		w.Write([]byte(`{"error":{"message":"Failed to deserialize the JSON body"}}`))
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, APIKey: "k"}
	_, err := c.CreateChatCompletion(context.Background(), ChatRequest{Model: "m"})
	var herr *HTTPError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, 422, herr.Status)
	assert.Contains(t, herr.Body, "deserialize")
}

func TestCreateChatCompletionRetriesOn503(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(503)
			return
		}
		json.NewEncoder(w).Encode(ChatResponse{Choices: []ChatChoice{{
			Message: ChatMessage{Role: "assistant", Content: "ok"},
		}}})
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, APIKey: "k", MaxRetries: 1}
	resp, err := c.CreateChatCompletion(context.Background(), ChatRequest{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, "ok", resp.Choices[0].Message.Content)
}

func TestEndpointNormalization(t *testing.T) {
	c := &Client{BaseURL: "https://openrouter.ai/api/v1/chat/completions/"}
	assert.Equal(t, "https://openrouter.ai/api/v1/chat/completions", c.endpoint())
}

func TestParsedArguments(t *testing.T) {
	tc := ToolCall{Function: ToolFunction{Name: "fetch_taapi_indicator", Arguments: `{"indicator":"rsi","symbol":"BTC","interval":"1h"}`}}
	args, err := tc.ParsedArguments()
	require.NoError(t, err)
	assert.Equal(t, "rsi", args["indicator"])

	tc.Function.Arguments = `{broken`
	_, err = tc.ParsedArguments()
	assert.Error(t, err)
}
