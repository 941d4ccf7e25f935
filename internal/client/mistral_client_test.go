package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corrigeo/api/internal/config"
)

func newTestMistralClient(serverURL string) *MistralClient {
	return NewMistralClient(&config.MistralConfig{
		APIKey:  "test-key",
		BaseURL: serverURL,
		Model:   "mistral-large-latest",
	})
}

func TestGrade_Success(t *testing.T) {
	var gotReq ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": "ANALYSE DÉTAILLÉE: bonne copie"}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := newTestMistralClient(srv.URL)
	feedback, err := c.Grade(context.Background(), "Corrige cette copie")
	require.NoError(t, err)
	assert.Equal(t, "ANALYSE DÉTAILLÉE: bonne copie", feedback)

	// One user message carrying the whole prompt, fixed sampling parameters.
	require.Len(t, gotReq.Messages, 1)
	assert.Equal(t, "user", gotReq.Messages[0].Role)
	assert.Equal(t, "Corrige cette copie", gotReq.Messages[0].Content)
	assert.Equal(t, 0.7, gotReq.Temperature)
	assert.Equal(t, 2048, gotReq.MaxTokens)
}

func TestGrade_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream overloaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestMistralClient(srv.URL)
	_, err := c.Grade(context.Background(), "prompt")
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestGrade_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused

	c := newTestMistralClient(srv.URL)
	_, err := c.Grade(context.Background(), "prompt")
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestGrade_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"choices": []interface{}{}})
	}))
	defer srv.Close()

	c := newTestMistralClient(srv.URL)
	_, err := c.Grade(context.Background(), "prompt")
	assert.ErrorIs(t, err, ErrModelResponseMalformed)
}

func TestGrade_MalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not-json"))
	}))
	defer srv.Close()

	c := newTestMistralClient(srv.URL)
	_, err := c.Grade(context.Background(), "prompt")
	assert.ErrorIs(t, err, ErrModelResponseMalformed)
}

func TestGrade_MockWhenUnconfigured(t *testing.T) {
	c := NewMistralClient(&config.MistralConfig{BaseURL: "https://api.mistral.ai/v1"})
	require.False(t, c.IsConfigured())

	feedback, err := c.Grade(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Contains(t, feedback, "COMMENTAIRE GÉNÉRAL")
}
