package domain

// Provider tags recorded on AnalysisResult.Source.
const (
	SourceVQA         = "vqa"
	SourceHuggingFace = "huggingface"
	SourceHeuristic   = "heuristic"
)

// AnalysisResult is the provider-independent outcome of analysing one image.
type AnalysisResult struct {
	Condition   string       `json:"condition"`
	Confidence  float64      `json:"confidence"`
	Urgency     UrgencyLevel `json:"urgency"`
	Symptoms    SymptomSet   `json:"symptoms"`
	Description string       `json:"description"`
	Source      string       `json:"source"`
}

// IsConcerning is true when the image alone reaches emergency tier.
func (r AnalysisResult) IsConcerning() bool {
	return r.Urgency.IsEmergency()
}

// MaxImageUrgency returns the highest urgency across results, LOW for none.
func MaxImageUrgency(results []AnalysisResult) UrgencyLevel {
	out := UrgencyLow
	for _, r := range results {
		out = MaxUrgency(out, r.Urgency)
	}
	return out
}

// Image is one uploaded image handed to the engine.
type Image struct {
	Name string
	Data []byte
}
