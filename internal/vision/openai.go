package vision

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

// OpenAI implements the Model interface using an OpenAI-compatible
// chat-completions endpoint.
type OpenAI struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewOpenAI creates a new OpenAI Model instance. The same constructor covers
// both the mini and full tiers; only the model name differs.
func NewOpenAI(baseURL, apiKey, modelName string) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if modelName == "" {
		modelName = "gpt-4o-mini"
	}

	return &OpenAI{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   modelName,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}, nil
}

// openaiChatRequest represents the request body for the chat completions API
type openaiChatRequest struct {
	Model          string          `json:"model"`
	Messages       []openaiMessage `json:"messages"`
	MaxTokens      int             `json:"max_tokens"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type openaiContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url,omitempty"`
}

type openaiChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Parse analyzes a receipt image and extracts structured fields
func (o *OpenAI) Parse(ctx context.Context, req Request) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	imagePart := openaiContentPart{Type: "image_url"}
	imagePart.ImageURL = &struct {
		URL string `json:"url"`
	}{URL: req.ImageB64}

	body := openaiChatRequest{
		Model:     o.model,
		MaxTokens: 1000,
		Messages: []openaiMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: []openaiContentPart{
				{Type: "text", Text: userPrompt(req.LocaleHint, req.CurrencyHint)},
				imagePart,
			}},
		},
	}
	body.ResponseFormat.Type = "json_object"

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/chat/completions", o.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling openai API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("openai API error (status %d): %s", resp.StatusCode, string(detail))
	}

	var chatResp openaiChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("no response from openai")
	}

	result, err := parseResultJSON(chatResp.Choices[0].Message.Content, o.model)
	if err != nil {
		return nil, fmt.Errorf("parsing receipt fields: %w", err)
	}
	return result, nil
}

// Name identifies the backing model
func (o *OpenAI) Name() string {
	return o.model
}

// Close closes the OpenAI client (no-op for HTTP client)
func (o *OpenAI) Close() error {
	return nil
}
