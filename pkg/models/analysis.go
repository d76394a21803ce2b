package models

import (
	"encoding/json"
	"time"
)

// Disclaimer must appear verbatim in every successful AnalysisResult
const Disclaimer = "This output is not a medical diagnosis or treatment advice. No patient images are stored by this system; only anonymized metadata may be retained."

// LabelScore is the model's match score for one allowed label
type LabelScore struct {
	Name  string  `json:"name"`
	Match float64 `json:"match"`
}

// AnalysisResult is the schema-checked model output returned to callers.
// It is built per request and never persisted.
type AnalysisResult struct {
	Labels              []LabelScore `json:"labels"`
	Top                 string       `json:"top"`
	Confidence          float64      `json:"confidence"`
	TriageLevel         string       `json:"triage_level"`
	RedFlags            []string     `json:"red_flags"`
	ImageQualityWarning *string      `json:"image_quality_warning"`
	Disclaimer          string       `json:"disclaimer"`

	// Raw holds the model's JSON object exactly as received
	Raw json.RawMessage `json:"-"`
}

// ScoreFor returns the match score of a label if the model scored it
func (r *AnalysisResult) ScoreFor(name string) (float64, bool) {
	for _, l := range r.Labels {
		if l.Name == name {
			return l.Match, true
		}
	}
	return 0, false
}

// AnalysisRecord is the anonymized metadata retained about one analysis.
// It never carries image bytes, free text or exact temperatures.
type AnalysisRecord struct {
	ID              string    `json:"id"`
	RequestID       string    `json:"request_id,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	Outcome         string    `json:"outcome"`
	ErrorCode       string    `json:"error_code,omitempty"`
	Provider        string    `json:"provider"`
	Model           string    `json:"model"`
	EffectiveLabels []string  `json:"effective_labels,omitempty"`
	Top             string    `json:"top,omitempty"`
	TriageLevel     string    `json:"triage_level,omitempty"`
	Confidence      float64   `json:"confidence,omitempty"`
	RedFlagCount    int       `json:"red_flag_count"`
	AgeMonths       *int      `json:"age_months,omitempty"`
	BiologicalSex   *string   `json:"biological_sex,omitempty"`
	FeverPresent    *bool     `json:"fever_present,omitempty"`
	Attempts        int       `json:"attempts"`
	DurationMs      int64     `json:"duration_ms"`
}
