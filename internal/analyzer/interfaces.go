package analyzer

import "go-rash-triage/pkg/models"

// RequestBuilder turns raw caller input into a validated AnalysisRequest
type RequestBuilder interface {
	Build(input RawInput) (*AnalysisRequest, error)
}

// ResponseDecoder turns the model's raw text into a schema-checked result
type ResponseDecoder interface {
	Decode(raw string) (*models.AnalysisResult, error)
}
