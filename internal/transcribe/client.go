// Package transcribe submits captured audio to a speech-to-text service.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ledgerlens/internal/capture"
)

const (
	// transcriptionModel is the fixed model identifier sent with every request.
	transcriptionModel = "whisper-1"

	// requestTimeout bounds the single transcription attempt.
	requestTimeout = 15 * time.Second

	// resultConfidence is the fixed confidence reported for a successful
	// transcription; the service does not return one.
	resultConfidence = 0.95
)

// ErrService means the transcription backend returned a non-2xx response or
// an unusable payload.
var ErrService = errors.New("transcription service error")

// Result is the transcription outcome. Immutable once produced.
type Result struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Language   string  `json:"language,omitempty"`
}

// Client submits audio handles to a speech-to-text endpoint. One attempt per
// call, no retries; the caller decides whether to re-record.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a Client for the given endpoint base URL
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// Transcribe sends the audio handle as a multipart form and returns the
// transcribed text. The handle is released when the request completes,
// success or failure.
func (c *Client) Transcribe(ctx context.Context, handle *capture.MediaHandle) (*Result, error) {
	defer func() {
		if err := handle.Release(); err != nil {
			slog.Warn("releasing audio handle", "error", err)
		}
	}()

	audio, filename, mimeType, err := audioPayload(handle)
	if err != nil {
		return nil, err
	}

	body, contentType, err := buildForm(audio, filename, mimeType)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", body)
	if err != nil {
		return nil, fmt.Errorf("building transcription request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling transcription service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(resp.Body)
		slog.Error("transcription request failed", "status", resp.StatusCode, "body", string(detail))
		return nil, fmt.Errorf("%w: status %d", ErrService, resp.StatusCode)
	}

	var payload struct {
		Text     *string `json:"text"`
		Language string  `json:"language"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrService, err)
	}
	if payload.Text == nil {
		return nil, fmt.Errorf("%w: response missing text field", ErrService)
	}

	return &Result{
		Text:       *payload.Text,
		Confidence: resultConfidence,
		Language:   payload.Language,
	}, nil
}

// audioPayload reads the handle's media and infers filename and MIME type.
// File-backed handles infer from the extension; blob handles carry their own
// type.
func audioPayload(handle *capture.MediaHandle) ([]byte, string, string, error) {
	if handle == nil || handle.Empty() {
		return nil, "", "", capture.ErrEmptyRecording
	}

	if handle.Path != "" {
		data, err := os.ReadFile(handle.Path)
		if err != nil {
			return nil, "", "", fmt.Errorf("reading audio file: %w", err)
		}
		filename := filepath.Base(handle.Path)
		return data, filename, audioMIMEFromExtension(filename), nil
	}

	mimeType := handle.MIME
	if mimeType == "" {
		mimeType = "audio/m4a"
	}
	return handle.Data, "recording" + extensionForAudioMIME(mimeType), mimeType, nil
}

// buildForm assembles the multipart body: file, fixed model identifier and
// JSON response format.
func buildForm(audio []byte, filename, mimeType string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if err := writer.WriteField("model", transcriptionModel); err != nil {
		return nil, "", fmt.Errorf("writing model field: %w", err)
	}
	if err := writer.WriteField("response_format", "json"); err != nil {
		return nil, "", fmt.Errorf("writing response_format field: %w", err)
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", mimeType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("creating file form field: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, "", fmt.Errorf("writing audio data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart writer: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}

// audioMIMEFromExtension maps a filename to its container type, defaulting to
// a generic audio container when unrecognized.
func audioMIMEFromExtension(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".webm":
		return "audio/webm"
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mp3"
	default:
		return "audio/m4a"
	}
}

func extensionForAudioMIME(mimeType string) string {
	switch mimeType {
	case "audio/webm":
		return ".webm"
	case "audio/wav":
		return ".wav"
	case "audio/mp3":
		return ".mp3"
	default:
		return ".m4a"
	}
}
