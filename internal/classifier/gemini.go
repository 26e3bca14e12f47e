package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/lucasmonteiro/triageflow/internal/config"
	"github.com/lucasmonteiro/triageflow/pkg/models"
)

// GeminiProvider implements Classifier against the Gemini generateContent API.
// One request per classification; failures surface as sentinel errors and
// redelivery is left to the queue.
type GeminiProvider struct {
	cfg    config.GeminiConfig
	client *http.Client
}

func NewGeminiProvider(cfg config.GeminiConfig) *GeminiProvider {
	return &GeminiProvider{
		cfg:    cfg,
		client: &http.Client{},
	}
}

func (p *GeminiProvider) Name() string { return "gemini" }

type generateRequest struct {
	Contents         []geminiContent  `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
	TopP            float64 `json:"topP"`
	TopK            int     `json:"topK"`
}

type generateResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// classification is the JSON document the model is instructed to return.
type classification struct {
	Priority       string  `json:"priority"`
	Recommendation string  `json:"recommendation"`
	Reasoning      string  `json:"reasoning"`
	Confidence     float64 `json:"confidence"`
}

func (p *GeminiProvider) Classify(ctx context.Context, triage *models.Triage, patient *models.Patient) (*Result, error) {
	reqBody := generateRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: BuildPrompt(triage, patient)}}}},
		GenerationConfig: generationConfig{
			Temperature:     p.cfg.Temperature,
			MaxOutputTokens: p.cfg.MaxTokens,
			TopP:            0.8,
			TopK:            40,
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encoding gemini request: %w", err)
	}

	u := fmt.Sprintf("%s/models/%s:generateContent", p.cfg.BaseURL, p.cfg.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building gemini request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrClassifierUnavailable, resp.StatusCode)
	}

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrInvalidResponse, err)
	}

	text, err := responseText(genResp)
	if err != nil {
		return nil, err
	}
	return parseClassification(text)
}

func responseText(resp generateResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates", ErrInvalidResponse)
	}
	parts := resp.Candidates[0].Content.Parts
	if len(parts) == 0 || strings.TrimSpace(parts[0].Text) == "" {
		return "", fmt.Errorf("%w: empty content", ErrInvalidResponse)
	}
	return parts[0].Text, nil
}

// parseClassification extracts the classification JSON from the model's free
// text. The model may wrap the document in prose or code fences, so only the
// span between the first '{' and the last '}' is decoded.
func parseClassification(text string) (*Result, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || start >= end {
		return nil, fmt.Errorf("%w: no JSON document in response", ErrInvalidResponse)
	}

	var c classification
	if err := json.Unmarshal([]byte(text[start:end+1]), &c); err != nil {
		return nil, fmt.Errorf("%w: parsing classification: %v", ErrInvalidResponse, err)
	}

	priority, err := models.ParsePriorityLevel(c.Priority)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	return &Result{
		Priority:       priority,
		Recommendation: c.Recommendation,
		Reasoning:      c.Reasoning,
		Confidence:     ClampConfidence(c.Confidence),
		RawResponse:    text,
	}, nil
}

func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrClassifierTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrClassifierTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrClassifierUnavailable, err)
}

var _ Classifier = (*GeminiProvider)(nil)
