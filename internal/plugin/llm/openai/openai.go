// Package openai registers an llm.Caller backed by OpenAI's chat completions
// API, for deployments that don't inject their own Caller.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/chirino/souvenir/internal/config"
	registryllm "github.com/chirino/souvenir/internal/registry/llm"
)

func init() {
	registryllm.Register(registryllm.Plugin{
		Name:   "openai",
		Loader: load,
	})
}

func load(ctx context.Context) (registryllm.Caller, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.LLMAPIKey == "" {
		return nil, fmt.Errorf("openai llm: LLMAPIKey is required")
	}
	c := &client{
		apiKey:  cfg.LLMAPIKey,
		model:   cfg.LLMModelName,
		baseURL: strings.TrimRight(cfg.LLMBaseURL, "/"),
	}
	return c.call, nil
}

type client struct {
	apiKey  string
	model   string
	baseURL string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *client) call(ctx context.Context, system, user string) (string, error) {
	reqBody, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai llm request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("openai llm: read response: %w", err)
	}

	var result chatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("openai llm: parse response: %w", err)
	}
	if result.Error != nil {
		return "", fmt.Errorf("openai llm error: %s", result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("openai llm: no choices returned")
	}
	return result.Choices[0].Message.Content, nil
}
