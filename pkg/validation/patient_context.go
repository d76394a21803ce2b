package validation

import (
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"go-rash-triage/pkg/models"
)

// Field names as they appear in the patient_context JSON object, in the
// order their errors are reported.
const (
	FieldAgeMonths          = "age_months"
	FieldBiologicalSex      = "biological_sex"
	FieldTemperatureCelsius = "temperature_celsius"
	FieldFeverPresent       = "fever_present"
)

var patientFieldOrder = []string{
	FieldAgeMonths,
	FieldBiologicalSex,
	FieldTemperatureCelsius,
	FieldFeverPresent,
}

// PatientContextRules defines the accepted ranges for patient metadata
type PatientContextRules struct {
	MinAgeMonths     int
	MaxAgeMonths     int
	MinTemperatureC  float64
	MaxTemperatureC  float64
	FeverThresholdC  float64
	AllowedSexValues []string
}

// DefaultPatientContextRules returns the pediatric ranges: 0-18 years,
// 32-45 °C, fever from 38 °C.
func DefaultPatientContextRules() PatientContextRules {
	return PatientContextRules{
		MinAgeMonths:     0,
		MaxAgeMonths:     216,
		MinTemperatureC:  32.0,
		MaxTemperatureC:  45.0,
		FeverThresholdC:  38.0,
		AllowedSexValues: []string{"M", "F"},
	}
}

// PatientContextValidator checks optional patient metadata field by field
type PatientContextValidator struct {
	rules    PatientContextRules
	validate *validator.Validate
}

// typedPatientContext carries the values that passed type checks; range
// rules are expressed as tags and filled in per validator instance.
type typedPatientContext struct {
	AgeMonths          *int     `json:"age_months"`
	BiologicalSex      *string  `json:"biological_sex"`
	TemperatureCelsius *float64 `json:"temperature_celsius"`
	FeverPresent       *bool    `json:"fever_present"`
}

// NewPatientContextValidator creates a validator with default rules
func NewPatientContextValidator() *PatientContextValidator {
	return NewPatientContextValidatorWithRules(DefaultPatientContextRules())
}

// NewPatientContextValidatorWithRules creates a validator with custom rules
func NewPatientContextValidatorWithRules(rules PatientContextRules) *PatientContextValidator {
	v := validator.New()
	v.RegisterTagNameFunc(jsonFieldName)
	v.RegisterStructValidationMapRules(map[string]string{
		"AgeMonths":          fmt.Sprintf("omitempty,min=%d,max=%d", rules.MinAgeMonths, rules.MaxAgeMonths),
		"BiologicalSex":      "omitempty,oneof=" + strings.Join(rules.AllowedSexValues, " "),
		"TemperatureCelsius": fmt.Sprintf("omitempty,min=%g,max=%g", rules.MinTemperatureC, rules.MaxTemperatureC),
	}, typedPatientContext{})

	return &PatientContextValidator{
		rules:    rules,
		validate: v,
	}
}

// Validate checks every known field independently and reports all violations
// in one pass. Absent and null fields are skipped; unknown fields pass through
// into Extra untouched. When a valid temperature is given without
// fever_present, fever_present is derived from the fever threshold.
func (pv *PatientContextValidator) Validate(raw map[string]interface{}) (models.PatientContext, []string) {
	var ctx models.PatientContext
	fieldErrors := make(map[string]string)
	typed := typedPatientContext{}

	for key, value := range raw {
		if value == nil {
			continue
		}
		switch key {
		case FieldAgeMonths:
			n, ok := value.(float64)
			if !ok || n != math.Trunc(n) || math.IsInf(n, 0) {
				fieldErrors[key] = pv.ageMessage()
				continue
			}
			if n < math.MinInt32 || n > math.MaxInt32 {
				fieldErrors[key] = pv.ageMessage()
				continue
			}
			age := int(n)
			typed.AgeMonths = &age
		case FieldBiologicalSex:
			s, ok := value.(string)
			if !ok {
				fieldErrors[key] = pv.sexMessage()
				continue
			}
			typed.BiologicalSex = &s
		case FieldTemperatureCelsius:
			f, ok := value.(float64)
			if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
				fieldErrors[key] = pv.temperatureMessage()
				continue
			}
			typed.TemperatureCelsius = &f
		case FieldFeverPresent:
			b, ok := value.(bool)
			if !ok {
				fieldErrors[key] = fmt.Sprintf("%s must be a boolean", FieldFeverPresent)
				continue
			}
			typed.FeverPresent = &b
		default:
			if ctx.Extra == nil {
				ctx.Extra = make(map[string]interface{})
			}
			ctx.Extra[key] = value
		}
	}

	if err := pv.validate.Struct(typed); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				switch fe.Field() {
				case FieldAgeMonths:
					fieldErrors[FieldAgeMonths] = pv.ageMessage()
					typed.AgeMonths = nil
				case FieldBiologicalSex:
					fieldErrors[FieldBiologicalSex] = pv.sexMessage()
					typed.BiologicalSex = nil
				case FieldTemperatureCelsius:
					fieldErrors[FieldTemperatureCelsius] = pv.temperatureMessage()
					typed.TemperatureCelsius = nil
				}
			}
		} else {
			fieldErrors["patient_context"] = err.Error()
		}
	}

	if len(fieldErrors) > 0 {
		ordered := make([]string, 0, len(fieldErrors))
		for _, field := range patientFieldOrder {
			if msg, ok := fieldErrors[field]; ok {
				ordered = append(ordered, msg)
			}
		}
		if msg, ok := fieldErrors["patient_context"]; ok {
			ordered = append(ordered, msg)
		}
		return models.PatientContext{}, ordered
	}

	ctx.AgeMonths = typed.AgeMonths
	ctx.BiologicalSex = typed.BiologicalSex
	ctx.TemperatureCelsius = typed.TemperatureCelsius
	ctx.FeverPresent = typed.FeverPresent
	if ctx.FeverPresent == nil && ctx.TemperatureCelsius != nil {
		fever := *ctx.TemperatureCelsius >= pv.rules.FeverThresholdC
		ctx.FeverPresent = &fever
	}
	return ctx, nil
}

func (pv *PatientContextValidator) ageMessage() string {
	return fmt.Sprintf("%s must be an integer between %d and %d",
		FieldAgeMonths, pv.rules.MinAgeMonths, pv.rules.MaxAgeMonths)
}

func (pv *PatientContextValidator) sexMessage() string {
	return fmt.Sprintf("%s must be one of %s",
		FieldBiologicalSex, strings.Join(pv.rules.AllowedSexValues, ", "))
}

func (pv *PatientContextValidator) temperatureMessage() string {
	return fmt.Sprintf("%s must be a number between %g and %g",
		FieldTemperatureCelsius, pv.rules.MinTemperatureC, pv.rules.MaxTemperatureC)
}

// FahrenheitToCelsius converts a Fahrenheit reading, rounded to 0.1 °C.
func FahrenheitToCelsius(f float64) float64 {
	return math.Round((f-32)*5/9*10) / 10
}

func jsonFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" || name == "" {
		return fld.Name
	}
	return name
}
