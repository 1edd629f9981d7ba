package parsesvc

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"ledgerlens/internal/vision"
)

// maxImageBytes is the decoded-size cap for submitted images.
const maxImageBytes = 10 << 20 // 10MB

// jsonError writes a JSON error response with CORS headers set
func jsonError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// handleRoot dispatches on method: OPTIONS preflight, GET health, POST parse
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodOptions:
		setCORSHeaders(w)
		w.WriteHeader(http.StatusNoContent)
	case http.MethodGet:
		s.handleHealth(w, r)
	case http.MethodPost:
		s.handleParse(w, r)
	default:
		jsonError(w, "Method not allowed. Use POST for parsing, GET for health check.", http.StatusMethodNotAllowed)
	}
}

// handleHealth returns service status and enabled features
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	response := map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   s.version,
		"features":  []string{"receipt-parsing", "rate-limiting", "cors-support"},
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleParse validates the submitted image and runs it through the models.
// Rate limiting is checked before any validation so rejected requests still
// count against the client's window.
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	clientID := ClientID(r)
	if allowed, retryAfter := s.limiter.Allow(clientID); !allowed {
		seconds := int(retryAfter.Round(time.Second).Seconds())
		if seconds < 1 {
			seconds = 1
		}
		slog.Warn("rate limit exceeded", "client", clientID, "retry_after_s", seconds)
		setCORSHeaders(w)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", fmt.Sprintf("%d", seconds))
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error":       "Rate limit exceeded. Please try again later.",
			"retry_after": seconds,
		})
		return
	}

	var req vision.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if !strings.HasPrefix(req.ImageB64, "data:image/") {
		jsonError(w, "Invalid image data. Expected base64 data URL.", http.StatusBadRequest)
		return
	}

	// Estimate decoded size from the base64 length without decoding
	if len(req.ImageB64)*3/4 > maxImageBytes {
		jsonError(w, "Image too large. Maximum size is 10MB.", http.StatusBadRequest)
		return
	}

	result, err := s.parser.Parse(r.Context(), req)
	if err != nil {
		slog.Error("Error parsing receipt", "client", clientID, "error", err)
		jsonError(w, "Failed to parse receipt. Please try again.", http.StatusInternalServerError)
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	response := struct {
		*vision.Result
		Version string `json:"version"`
	}{Result: result, Version: s.version}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}
