package models

import "encoding/json"

// PatientContext is the optional structured metadata forwarded with a photo.
// Only the typed fields are validated; everything else rides in Extra.
type PatientContext struct {
	AgeMonths          *int     `json:"age_months,omitempty"`
	BiologicalSex      *string  `json:"biological_sex,omitempty"`
	TemperatureCelsius *float64 `json:"temperature_celsius,omitempty"`
	FeverPresent       *bool    `json:"fever_present,omitempty"`

	Extra map[string]interface{} `json:"-"`
}

// IsEmpty reports whether no field at all was supplied
func (p PatientContext) IsEmpty() bool {
	return p.AgeMonths == nil && p.BiologicalSex == nil &&
		p.TemperatureCelsius == nil && p.FeverPresent == nil && len(p.Extra) == 0
}

// MarshalJSON emits pass-through fields alongside the validated ones.
func (p PatientContext) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(p.Extra)+4)
	for k, v := range p.Extra {
		out[k] = v
	}
	if p.AgeMonths != nil {
		out["age_months"] = *p.AgeMonths
	}
	if p.BiologicalSex != nil {
		out["biological_sex"] = *p.BiologicalSex
	}
	if p.TemperatureCelsius != nil {
		out["temperature_celsius"] = *p.TemperatureCelsius
	}
	if p.FeverPresent != nil {
		out["fever_present"] = *p.FeverPresent
	}
	return json.Marshal(out)
}
