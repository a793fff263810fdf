// Package llm provides the chat-completions client the phrasing layer uses to
// soften scripted lines. The conversation controller never depends on it for
// decisions; with no API key configured the templates are spoken verbatim.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const systemPrompt = "You rewrite one line spoken by a debt-collection phone agent. " +
	"Keep every factual element (amounts, dates, names, account references) exactly as given, " +
	"keep any legally required wording intact, and return only the rewritten line."

// CerebrasClient calls the Cerebras chat-completions API.
type CerebrasClient struct {
	HTTPClient *http.Client
	APIKey     string
	Model      string
	// Endpoint overrides the production API URL when set.
	Endpoint string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionsRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	FinishReason string      `json:"finish_reason"`
	Message      chatMessage `json:"message"`
}

type chatCompletionsResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

func NewCerebrasClient(apiKey, model string) *CerebrasClient {
	return &CerebrasClient{
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		APIKey:     apiKey,
		Model:      model,
	}
}

// Rephrase returns a natural-sounding version of line, or an error the caller
// should recover from by speaking the original.
func (c *CerebrasClient) Rephrase(ctx context.Context, line string) (string, error) {
	if c.APIKey == "" {
		return "", fmt.Errorf("cerebras api key missing")
	}
	endpoint := c.Endpoint
	if endpoint == "" {
		endpoint = "https://api.cerebras.ai/v1/chat/completions"
	}

	reqBody, _ := json.Marshal(chatCompletionsRequest{
		Model: c.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: line},
		},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("cerebras error: status=%d body=%s", resp.StatusCode, string(b))
	}
	var cr chatCompletionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", err
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("cerebras: empty choices")
	}
	out := strings.TrimSpace(cr.Choices[0].Message.Content)
	if out == "" {
		return "", fmt.Errorf("cerebras: empty rewrite")
	}
	return out, nil
}
