package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/corrigeo/api/internal/config"
)

var (
	// ErrModelUnavailable marks transport failures, timeouts and non-success
	// HTTP statuses from the grading endpoint.
	ErrModelUnavailable = errors.New("grading model unavailable")
	// ErrModelResponseMalformed marks a response missing the completion field.
	ErrModelResponseMalformed = errors.New("grading model response malformed")
)

// Grading parameters are fixed; tuning them is not a per-request concern.
const (
	gradingTemperature = 0.7
	gradingMaxTokens   = 2048
)

// MistralClient handles communication with the Mistral chat-completions API.
// It performs exactly one call per Grade invocation; retry policy lives in
// the queue layer so attempts stay observable and bounded in one place.
type MistralClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// ChatMessage represents a message in the chat completion request
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest represents the request body for chat completion
type ChatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// ChatCompletionResponse represents the response from chat completion
type ChatCompletionResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// NewMistralClient creates a new Mistral API client
func NewMistralClient(cfg *config.MistralConfig) *MistralClient {
	return &MistralClient{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
	}
}

// Grade sends the grading prompt as a single user message and returns the
// model's feedback text.
func (c *MistralClient) Grade(ctx context.Context, promptText string) (string, error) {
	if !c.IsConfigured() {
		return c.mockFeedback(), nil
	}

	reqBody := ChatCompletionRequest{
		Model:       c.model,
		Messages:    []ChatMessage{{Role: "user", Content: promptText}},
		Temperature: gradingTemperature,
		MaxTokens:   gradingMaxTokens,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrModelUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d: %s", ErrModelUnavailable, resp.StatusCode, string(respBody))
	}

	var chatResp ChatCompletionResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrModelResponseMalformed, err)
	}

	if len(chatResp.Choices) == 0 || chatResp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("%w: no completion in response", ErrModelResponseMalformed)
	}

	return chatResp.Choices[0].Message.Content, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *MistralClient) IsConfigured() bool {
	return c.apiKey != ""
}

// mockFeedback returns placeholder feedback for development without an API key.
func (c *MistralClient) mockFeedback() string {
	return "ANALYSE DÉTAILLÉE:\nCopie évaluée en mode développement, sans appel au modèle.\n\n" +
		"POINTS FORTS:\n- Copie reçue et traitée.\n\n" +
		"POINTS À AMÉLIORER:\n- Configurer une clé d'API pour obtenir une évaluation réelle.\n\n" +
		"NOTATION DÉTAILLÉE:\nNon notée (mode développement).\n\n" +
		"COMMENTAIRE GÉNÉRAL:\nRésultat factice généré sans modèle de langage."
}
