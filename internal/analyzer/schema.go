package analyzer

import (
	"go-rash-triage/internal/triage"
)

// AnalysisSchema is the structured-output schema requested from the
// provider. Label names are restricted to the effective label set.
func AnalysisSchema(labels []triage.Label) map[string]interface{} {
	names := triage.Strings(labels)
	tiers := make([]string, 0, 4)
	for _, tier := range triage.Tiers() {
		tiers = append(tiers, string(tier))
	}

	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"labels": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"name":  map[string]interface{}{"type": "string", "enum": names},
						"match": map[string]interface{}{"type": "number"},
					},
					"required": []string{"name", "match"},
				},
			},
			"top":                   map[string]interface{}{"type": "string", "enum": names},
			"confidence":            map[string]interface{}{"type": "number"},
			"triage_level":          map[string]interface{}{"type": "string", "enum": tiers},
			"red_flags":             map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			"image_quality_warning": map[string]interface{}{"type": "string", "nullable": true},
			"disclaimer":            map[string]interface{}{"type": "string"},
		},
		"required": []string{"labels", "top", "confidence", "triage_level", "red_flags", "disclaimer"},
	}
}

// PongSchema is the schema of the connectivity probe answer
func PongSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"pong": map[string]interface{}{"type": "boolean"},
		},
		"required": []string{"pong"},
	}
}
