package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/vetcheck/internal/domain"
)

// DefaultHuggingFaceURL is the hosted image classification model.
const DefaultHuggingFaceURL = "https://api-inference.huggingface.co/models/microsoft/resnet-50"

// classificationScale discounts a coarse species classification.
const classificationScale = 0.7

var errEmptyClassification = errors.New("empty classification response")

// HuggingFaceClient is the secondary cloud classification provider.
type HuggingFaceClient struct {
	modelURL    string
	token       string
	httpClient  *http.Client
	readTimeout time.Duration
}

// HFOption configures a HuggingFaceClient.
type HFOption func(*HuggingFaceClient)

// WithHFHTTPClient overrides the HTTP client.
func WithHFHTTPClient(c *http.Client) HFOption {
	return func(h *HuggingFaceClient) { h.httpClient = c }
}

// NewHuggingFaceClient creates a classifier client. modelURL may be empty.
func NewHuggingFaceClient(token, modelURL string, connectTimeout, readTimeout time.Duration, opts ...HFOption) *HuggingFaceClient {
	if modelURL == "" {
		modelURL = DefaultHuggingFaceURL
	}
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	c := &HuggingFaceClient{
		modelURL:    modelURL,
		token:       token,
		httpClient:  newHTTPClient(connectTimeout),
		readTimeout: readTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Name implements Provider.
func (c *HuggingFaceClient) Name() string { return domain.SourceHuggingFace }

type classification struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Analyze implements Provider.
func (c *HuggingFaceClient) Analyze(ctx context.Context, image []byte) (domain.AnalysisResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.readTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.modelURL, bytes.NewReader(image))
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("build classification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("classify image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.AnalysisResult{}, fmt.Errorf("classify image: %w", statusError(resp))
	}

	var labels []classification
	if err := json.NewDecoder(resp.Body).Decode(&labels); err != nil {
		return domain.AnalysisResult{}, domain.Internal("decode classification", err)
	}
	if len(labels) == 0 {
		return domain.AnalysisResult{}, errEmptyClassification
	}
	return normalizeClassification(labels[0]), nil
}

func normalizeClassification(top classification) domain.AnalysisResult {
	label := strings.ToLower(top.Label)
	if strings.Contains(label, "dog") || strings.Contains(label, "cat") || strings.Contains(label, "animal") {
		return domain.AnalysisResult{
			Condition:  "Pet identified - visual health monitoring recommended",
			Confidence: clamp01(top.Score * classificationScale),
			Urgency:    domain.UrgencyLow,
			Symptoms:   domain.SymptomSet{"Animal identified as " + top.Label},
			Description: fmt.Sprintf("Basic Image Classification Report\n\n"+
				"DETECTED: %s (confidence: %.1f%%)\n\n"+
				"This basic classification has identified your pet but cannot detect specific health conditions.\n\n"+
				"For comprehensive health assessment:\n"+
				"• Describe any symptoms you've observed\n"+
				"• Note behavioral changes\n"+
				"• Consider veterinary consultation if concerned\n\n"+
				"Note: Advanced AI visual analysis is temporarily unavailable.", top.Label, top.Score*100),
			Source: domain.SourceHuggingFace,
		}
	}
	return domain.AnalysisResult{
		Condition:   "Image processed - manual review recommended",
		Confidence:  0.3,
		Urgency:     domain.UrgencyLow,
		Symptoms:    domain.SymptomSet{},
		Description: "Basic image processing completed. Manual veterinary review recommended.",
		Source:      domain.SourceHuggingFace,
	}
}
