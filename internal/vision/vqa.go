package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/vetcheck/internal/domain"
)

// DefaultVQAURL is where the local visual question answering service listens.
const DefaultVQAURL = "http://127.0.0.1:5000"

var errModelsNotLoaded = errors.New("vqa models not loaded")

// VQAClient talks to the primary visual-analysis service.
type VQAClient struct {
	baseURL      string
	httpClient   *http.Client
	probeTimeout time.Duration
	readTimeout  time.Duration
}

// VQAOption configures a VQAClient.
type VQAOption func(*VQAClient)

// WithVQAHTTPClient overrides the HTTP client.
func WithVQAHTTPClient(c *http.Client) VQAOption {
	return func(v *VQAClient) { v.httpClient = c }
}

// WithVQATimeouts sets the probe and full-analysis timeouts.
func WithVQATimeouts(probe, read time.Duration) VQAOption {
	return func(v *VQAClient) {
		if probe > 0 {
			v.probeTimeout = probe
		}
		if read > 0 {
			v.readTimeout = read
		}
	}
}

// NewVQAClient creates a client for the service at baseURL.
func NewVQAClient(baseURL string, connectTimeout time.Duration, opts ...VQAOption) *VQAClient {
	if baseURL == "" {
		baseURL = DefaultVQAURL
	}
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	c := &VQAClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   newHTTPClient(connectTimeout),
		probeTimeout: DefaultProbeTimeout,
		readTimeout:  DefaultReadTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Name implements Provider.
func (c *VQAClient) Name() string { return domain.SourceVQA }

type vqaHealth struct {
	Status       string `json:"status"`
	ModelsLoaded bool   `json:"models_loaded"`
}

// Probe reports nil only when the service is healthy with its models loaded.
func (c *VQAClient) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("vqa health: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("vqa health: %w", statusError(resp))
	}
	var h vqaHealth
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return fmt.Errorf("decode vqa health: %w", err)
	}
	if h.Status != "healthy" {
		return fmt.Errorf("vqa status %q", h.Status)
	}
	if !h.ModelsLoaded {
		return errModelsNotLoaded
	}
	return nil
}

type vqaAssessment struct {
	Condition       string   `json:"condition"`
	Confidence      *float64 `json:"confidence"`
	UrgencyLevel    string   `json:"urgency_level"`
	Summary         string   `json:"summary"`
	Recommendations []string `json:"recommendations"`
}

type vqaResults struct {
	OverallAssessment vqaAssessment `json:"overall_assessment"`
	CriticalFindings  []finding     `json:"critical_findings"`
	PriorityFindings  []finding     `json:"priority_findings"`
	HealthFindings    []finding     `json:"health_findings"`
	ProcessingTime    float64       `json:"processing_time"`
	ModelUsed         string        `json:"model_used"`
}

type vqaResponse struct {
	Success bool       `json:"success"`
	Error   string     `json:"error"`
	Results vqaResults `json:"results"`
}

// Analyze implements Provider.
func (c *VQAClient) Analyze(ctx context.Context, image []byte) (domain.AnalysisResult, error) {
	var out vqaResponse
	payload := map[string]string{"image_base64": base64.StdEncoding.EncodeToString(image)}
	if err := c.postJSON(ctx, "/analyze", payload, &out); err != nil {
		return domain.AnalysisResult{}, err
	}
	if !out.Success {
		return domain.AnalysisResult{}, fmt.Errorf("vqa analysis failed: %s", out.Error)
	}
	return normalizeVQA(out.Results), nil
}

// QuickAnswer is the service's reply to a single free-form question.
type QuickAnswer struct {
	Question   string  `json:"question"`
	Answer     string  `json:"answer"`
	Confidence float64 `json:"confidence"`
}

// AskQuestion asks one free-form question about image.
func (c *VQAClient) AskQuestion(ctx context.Context, image []byte, question string) (QuickAnswer, error) {
	if strings.TrimSpace(question) == "" {
		return QuickAnswer{}, domain.Invalid("question must not be empty")
	}
	if err := c.Probe(ctx); err != nil {
		return QuickAnswer{}, domain.Unavailable(c.Name(), err)
	}

	var out struct {
		Success bool `json:"success"`
		Error   string
		QuickAnswer
	}
	payload := map[string]string{
		"image_base64": base64.StdEncoding.EncodeToString(image),
		"question":     question,
	}
	if err := c.postJSON(ctx, "/quick-question", payload, &out); err != nil {
		return QuickAnswer{}, domain.Unavailable(c.Name(), err)
	}
	if !out.Success {
		return QuickAnswer{}, domain.Unavailable(c.Name(), fmt.Errorf("quick question failed: %s", out.Error))
	}
	return out.QuickAnswer, nil
}

func (c *VQAClient) postJSON(ctx context.Context, path string, payload, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.readTimeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("post %s: %w", path, statusError(resp))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.Internal("decode "+path+" response", err)
	}
	return nil
}

func normalizeVQA(r vqaResults) domain.AnalysisResult {
	a := r.OverallAssessment
	condition := a.Condition
	if condition == "" {
		condition = "Assessment completed"
	}
	confidence := 0.6
	if a.Confidence != nil {
		confidence = clamp01(*a.Confidence)
	}
	urgency, ok := domain.ParseUrgency(a.UrgencyLevel)
	if !ok {
		urgency = domain.UrgencyLow
	}
	model := r.ModelUsed
	if model == "" {
		model = "VQA"
	}

	var concerns []string
	symptoms := domain.SymptomSet{}
	for _, group := range [][]finding{r.CriticalFindings, r.PriorityFindings} {
		for _, f := range group {
			if !f.IsConcerning {
				continue
			}
			phrase := concernPhrase(f)
			concerns = append(concerns, phrase)
			symptoms = symptoms.Add(phrase)
		}
	}
	var positives []string
	for _, f := range r.HealthFindings {
		if f.IsPositive {
			positives = append(positives, positivePhrase(f))
		}
	}
	for _, rec := range a.Recommendations {
		symptoms = symptoms.Add("Recommendation: " + rec)
	}

	return domain.AnalysisResult{
		Condition:   condition,
		Confidence:  confidence,
		Urgency:     urgency,
		Symptoms:    symptoms,
		Description: assessmentReport(condition, concerns, positives, a.Summary, r.ProcessingTime, model),
		Source:      domain.SourceVQA,
	}
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
