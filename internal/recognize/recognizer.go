// Package recognize talks to the external text-recognition collaborator.
// This service never runs OCR itself; it consumes the recognizer's output
// string and confidence score as-is.
package recognize

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Result is the recognizer's answer for one document.
type Result struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"` // 0-100
}

// Recognizer turns an image/PDF into raw text plus a confidence score.
type Recognizer interface {
	Recognize(ctx context.Context, data []byte, contentType string) (Result, error)
}

// HTTPRecognizer calls a recognition service over HTTP.
type HTTPRecognizer struct {
	baseURL    string
	language   string
	httpClient *http.Client
}

// NewHTTPRecognizer creates a client for the configured recognition service.
func NewHTTPRecognizer(baseURL, language string, timeout time.Duration) *HTTPRecognizer {
	if language == "" {
		language = "spa"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPRecognizer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		language:   language,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Recognize posts the document and returns the recognized text. Unlike the
// registry client, a recognition failure is a hard error: there is nothing
// to normalize without text.
func (r *HTTPRecognizer) Recognize(ctx context.Context, data []byte, contentType string) (Result, error) {
	payload, _ := json.Marshal(map[string]string{
		"image":       base64.StdEncoding.EncodeToString(data),
		"contentType": contentType,
		"language":    r.language,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/recognize", bytes.NewReader(payload))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("servicio de reconocimiento no disponible: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("servicio de reconocimiento respondió HTTP %d", resp.StatusCode)
	}

	var out Result
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{}, fmt.Errorf("respuesta de reconocimiento ilegible: %w", err)
	}
	return out, nil
}
