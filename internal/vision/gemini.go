package vision

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini implements the Model interface using Google Gemini
type Gemini struct {
	client    *genai.Client
	model     *genai.GenerativeModel
	modelName string
}

// NewGemini creates a new Gemini Model instance
func NewGemini(apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.0-flash"
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)

	return &Gemini{
		client:    client,
		model:     model,
		modelName: modelName,
	}, nil
}

// Parse analyzes a receipt image and extracts structured fields
func (g *Gemini) Parse(ctx context.Context, req Request) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	format, imageData, err := decodeDataURL(req.ImageB64)
	if err != nil {
		return nil, err
	}

	parts := []genai.Part{
		genai.ImageData(format, imageData),
		genai.Text(systemPrompt + "\n\n" + userPrompt(req.LocaleHint, req.CurrencyHint)),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("generating content: %w", err)
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no response from gemini")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	result, err := parseResultJSON(responseText.String(), g.modelName)
	if err != nil {
		return nil, fmt.Errorf("parsing receipt fields: %w", err)
	}
	return result, nil
}

// Name identifies the backing model
func (g *Gemini) Name() string {
	return g.modelName
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}

// decodeDataURL splits a base64 data URL into the format suffix genai expects
// (e.g. "jpeg", not "image/jpeg") and the raw image bytes.
func decodeDataURL(dataURL string) (string, []byte, error) {
	const prefix = "data:image/"
	if !strings.HasPrefix(dataURL, prefix) {
		return "", nil, fmt.Errorf("expected base64 image data URL")
	}
	rest := dataURL[len(prefix):]

	sep := strings.Index(rest, ";base64,")
	if sep == -1 {
		return "", nil, fmt.Errorf("expected base64 image data URL")
	}
	format := rest[:sep]

	data, err := base64.StdEncoding.DecodeString(rest[sep+len(";base64,"):])
	if err != nil {
		return "", nil, fmt.Errorf("decoding image data: %w", err)
	}
	return format, data, nil
}
