package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("AI API key is not configured")

type (
	ChatMessage struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}

	ChatCompletionRequest struct {
		Model    string        `json:"model"`
		Messages []ChatMessage `json:"messages"`
		Stream   bool          `json:"stream"`
	}

	ChatCompletionChoice struct {
		Index        int         `json:"index"`
		Message      ChatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	}

	ChatCompletionResponse struct {
		ID      string                 `json:"id"`
		Model   string                 `json:"model"`
		Choices []ChatCompletionChoice `json:"choices"`
	}

	GenerateRequest struct {
		Prompt string `json:"prompt"`
		System string `json:"system,omitempty"`
		Model  string `json:"model,omitempty"`
	}

	GenerateResponse struct {
		Text  string `json:"text"`
		Model string `json:"model,omitempty"`
	}
)

// Client talks to an OpenAI compatible chat completions endpoint.
type Client struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
}

func NewClient(apiKey, baseURL, model string, timeout time.Duration) *Client {
	if apiKey == "" {
		logrus.Warn("AI API key not set, text generation is disabled")
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		http:    &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

// Generate sends one completion request and returns the first choice.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error) {
	if !c.Enabled() {
		return GenerateResponse{}, ErrNotConfigured
	}

	model := req.Model
	if model == "" {
		model = c.model
	}
	var messages []ChatMessage
	if req.System != "" {
		messages = append(messages, ChatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, ChatMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(ChatCompletionRequest{Model: model, Messages: messages})
	if err != nil {
		return GenerateResponse{}, err
	}

	proxyReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return GenerateResponse{}, err
	}
	proxyReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	proxyReq.Header.Set("Content-Type", "application/json")
	proxyReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(proxyReq)
	if err != nil {
		return GenerateResponse{}, fmt.Errorf("calling completions endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return GenerateResponse{}, fmt.Errorf("completions endpoint returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var completion ChatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return GenerateResponse{}, fmt.Errorf("decoding completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return GenerateResponse{}, errors.New("completion has no choices")
	}
	return GenerateResponse{Text: completion.Choices[0].Message.Content, Model: completion.Model}, nil
}

func HandleGenerate(client *Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !client.Enabled() {
			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, map[string]string{"error": ErrNotConfigured.Error()})
			return
		}

		var req GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Prompt) == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "A prompt is required"})
			return
		}

		resp, err := client.Generate(r.Context(), req)
		if err != nil {
			logrus.WithError(err).Warn("Text generation failed")
			render.Status(r, http.StatusBadGateway)
			render.JSON(w, r, map[string]string{"error": "Failed to communicate with the AI API"})
			return
		}
		render.JSON(w, r, resp)
	}
}
