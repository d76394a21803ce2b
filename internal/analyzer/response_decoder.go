package analyzer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "go-rash-triage/internal/errors"
	"go-rash-triage/internal/triage"
	"go-rash-triage/pkg/models"
)

var (
	errEmptyResponse = errors.New("empty response")
	errNotAnObject   = errors.New("response is not a JSON object")
	errTrailingData  = errors.New("response holds more than one JSON value")
)

// wireLabel and wireResult mirror the output schema. Pointers distinguish
// a missing field from a zero value.
type wireLabel struct {
	Name  *string  `json:"name" validate:"required,allowed_label"`
	Match *float64 `json:"match" validate:"required,min=0,max=1"`
}

type wireResult struct {
	Error               *string     `json:"error"`
	Labels              []wireLabel `json:"labels" validate:"required,min=1,dive"`
	Top                 *string     `json:"top" validate:"required,allowed_label"`
	Confidence          *float64    `json:"confidence" validate:"required,min=0,max=1"`
	TriageLevel         *string     `json:"triage_level" validate:"required,triage_tier"`
	RedFlags            []string    `json:"red_flags" validate:"required"`
	ImageQualityWarning *string     `json:"image_quality_warning"`
	Disclaimer          *string     `json:"disclaimer" validate:"required,disclaimer"`
}

// responseDecoder implements ResponseDecoder
type responseDecoder struct {
	validate *validator.Validate
}

// NewResponseDecoder creates a decoder that enforces the output schema
func NewResponseDecoder() ResponseDecoder {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	mustRegisterValidation(v, "allowed_label", func(fl validator.FieldLevel) bool {
		return triage.IsAllowed(fl.Field().String())
	})
	mustRegisterValidation(v, "triage_tier", func(fl validator.FieldLevel) bool {
		return triage.IsTier(fl.Field().String())
	})
	mustRegisterValidation(v, "disclaimer", func(fl validator.FieldLevel) bool {
		return fl.Field().String() == models.Disclaimer
	})
	return &responseDecoder{validate: v}
}

// mustRegisterValidation panics at construction if tag cannot be registered
func mustRegisterValidation(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("analyzer: register %q validation: %v", tag, err))
	}
}

// Decode parses raw as exactly one JSON object matching the output schema.
// A missing_image_or_labels sentinel becomes a validation error; anything
// else that does not fit becomes a decode error carrying raw. Cross-field
// consistency is not checked here.
func (d *responseDecoder) Decode(raw string) (*models.AnalysisResult, error) {
	object, err := ExtractObject(raw)
	if err != nil {
		return nil, apperrors.NewDecodeError(fmt.Sprintf("model output is not a single JSON object: %v", err), raw, err)
	}

	var wire wireResult
	if err := json.Unmarshal(object, &wire); err != nil {
		return nil, apperrors.NewDecodeError(fmt.Sprintf("model output has wrong field types: %v", err), raw, err)
	}

	if wire.Error != nil {
		if *wire.Error == apperrors.CodeMissingImageOrLabels {
			return nil, apperrors.NewValidationError(apperrors.CodeMissingImageOrLabels,
				"model reported a missing image or empty label set", nil)
		}
		return nil, apperrors.NewDecodeError(fmt.Sprintf("model returned error %q", *wire.Error), raw, nil)
	}

	if err := d.validate.Struct(wire); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return nil, apperrors.NewDecodeError("model output does not match the schema", raw, err).
				WithDetails(schemaMessages(verrs)...)
		}
		return nil, apperrors.NewDecodeError("model output could not be validated", raw, err)
	}

	return wire.toResult(object), nil
}

func (w *wireResult) toResult(object []byte) *models.AnalysisResult {
	labels := make([]models.LabelScore, len(w.Labels))
	for i, l := range w.Labels {
		labels[i] = models.LabelScore{Name: *l.Name, Match: *l.Match}
	}
	return &models.AnalysisResult{
		Labels:              labels,
		Top:                 *w.Top,
		Confidence:          *w.Confidence,
		TriageLevel:         *w.TriageLevel,
		RedFlags:            w.RedFlags,
		ImageQualityWarning: w.ImageQualityWarning,
		Disclaimer:          *w.Disclaimer,
		Raw:                 json.RawMessage(object),
	}
}

// ExtractObject trims whitespace and a surrounding Markdown code fence, then
// requires the remainder to be exactly one JSON object. The object bytes are
// returned unchanged.
func ExtractObject(raw string) ([]byte, error) {
	text := stripCodeFence(strings.TrimSpace(raw))
	if text == "" {
		return nil, errEmptyResponse
	}
	if text[0] != '{' {
		return nil, errNotAnObject
	}

	dec := json.NewDecoder(strings.NewReader(text))
	var object json.RawMessage
	if err := dec.Decode(&object); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errTrailingData
	}
	return bytes.TrimSpace(object), nil
}

func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	body := strings.TrimLeft(text[3:], " \t\r\n")
	if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = body[4:]
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}

func schemaMessages(verrs validator.ValidationErrors) []string {
	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		switch fe.Tag() {
		case "required":
			messages = append(messages, fmt.Sprintf("%s is required", field))
		case "min":
			if fe.Field() == "labels" {
				messages = append(messages, "labels must not be empty")
			} else {
				messages = append(messages, fmt.Sprintf("%s must be between 0 and 1", field))
			}
		case "max":
			messages = append(messages, fmt.Sprintf("%s must be between 0 and 1", field))
		case "allowed_label":
			messages = append(messages, fmt.Sprintf("%s %q is not an allowed label", field, fe.Value()))
		case "triage_tier":
			messages = append(messages, fmt.Sprintf("%s %q is not a triage tier", field, fe.Value()))
		case "disclaimer":
			messages = append(messages, "disclaimer does not match the required text")
		default:
			messages = append(messages, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return messages
}
