package translate

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

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "llama3.1"
)

// OllamaProvider runs against a local Ollama server. Completions use its
// OpenAI-compatible endpoint; CheckModel pulls the model if it is missing.
type OllamaProvider struct {
	*OpenAIProvider
	baseURL    string
	httpClient *http.Client
}

// NewOllamaProvider creates a provider for baseURL (default localhost:11434)
func NewOllamaProvider(baseURL, model string) *OllamaProvider {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if model == "" {
		model = defaultOllamaModel
	}

	inner := NewOpenAIProvider("ollama", baseURL+"/v1", model)
	inner.name = "ollama"
	return &OllamaProvider{
		OpenAIProvider: inner,
		baseURL:        baseURL,
		// Pulls can take minutes on first use.
		httpClient: &http.Client{Timeout: 30 * time.Minute},
	}
}

type pullRequest struct {
	Model  string `json:"model"`
	Stream bool   `json:"stream"`
}

type pullResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// CheckModel implements Provider. It asks Ollama to pull the model, which
// returns immediately when the model is already present.
func (p *OllamaProvider) CheckModel(ctx context.Context) error {
	body, err := json.Marshal(pullRequest{Model: p.model, Stream: false})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama pull failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return fmt.Errorf("ollama pull: failed to read response: %w", err)
	}

	var pr pullResponse
	if err := json.Unmarshal(raw, &pr); err != nil && resp.StatusCode == http.StatusOK {
		return fmt.Errorf("ollama pull: invalid response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || pr.Error != "" {
		msg := pr.Error
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return fmt.Errorf("ollama pull %s: status %d: %s", p.model, resp.StatusCode, msg)
	}
	if pr.Status != "success" {
		return fmt.Errorf("ollama pull %s: unexpected status %q", p.model, pr.Status)
	}
	return nil
}
