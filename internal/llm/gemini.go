package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/jmylchreest/pricewatch-api/internal/version"
)

// DefaultGeminiBaseURL is the public Generative Language API.
const DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

// GeminiConfig configures the streaming transport.
type GeminiConfig struct {
	APIKey          string
	BaseURL         string
	Model           string
	Temperature     float64
	MaxOutputTokens int
	SearchTool      bool // enable grounding with Google Search
}

// GeminiTransport streams generateContent responses over server-sent events.
type GeminiTransport struct {
	cfg        GeminiConfig
	httpClient *http.Client
}

// NewGeminiTransport creates a transport. Per-attempt deadlines come from the
// request context, so the HTTP client itself has no timeout.
func NewGeminiTransport(cfg GeminiConfig, httpClient *http.Client) *GeminiTransport {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGeminiBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if cfg.MaxOutputTokens == 0 {
		cfg.MaxOutputTokens = 8192
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &GeminiTransport{cfg: cfg, httpClient: httpClient}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		Temperature     float64 `json:"temperature"`
		MaxOutputTokens int     `json:"maxOutputTokens"`
	} `json:"generationConfig"`
	Tools []map[string]any `json:"tools,omitempty"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

type geminiChunk struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *geminiError `json:"error,omitempty"`
}

// Stream implements StreamTransport.
func (t *GeminiTransport) Stream(ctx context.Context, prompt string, emit func(Fragment)) error {
	if t.cfg.APIKey == "" {
		return ErrNotConfigured
	}

	reqBody := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
	}
	reqBody.GenerationConfig.Temperature = t.cfg.Temperature
	reqBody.GenerationConfig.MaxOutputTokens = t.cfg.MaxOutputTokens
	if t.cfg.SearchTool {
		reqBody.Tools = []map[string]any{{"googleSearch": map[string]any{}}}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?alt=sse",
		strings.TrimRight(t.cfg.BaseURL, "/"), url.PathEscape(t.cfg.Model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("x-goog-api-key", t.cfg.APIKey)
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var wrapped struct {
			Error geminiError `json:"error"`
		}
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &wrapped) == nil && wrapped.Error.Message != "" {
			return ClassifyStatus(resp.StatusCode, wrapped.Error.Status, wrapped.Error.Message)
		}
		return ClassifyStatus(resp.StatusCode, "", msg)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "" || data == "[DONE]" {
			continue
		}

		var chunk geminiChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			emit(Fragment{Err: fmt.Errorf("undecodable chunk: %w", err)})
			continue
		}
		if chunk.Error != nil {
			emit(Fragment{Err: fmt.Errorf("chunk error %d: %s", chunk.Error.Code, chunk.Error.Message)})
			continue
		}
		if len(chunk.Candidates) == 0 {
			continue
		}
		for _, part := range chunk.Candidates[0].Content.Parts {
			if part.Text != "" {
				emit(Fragment{Text: part.Text})
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream interrupted: %w", err)
	}
	return nil
}
