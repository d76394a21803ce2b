package analyzer

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	apperrors "go-rash-triage/internal/errors"
	"go-rash-triage/internal/triage"
	"go-rash-triage/internal/upstream"
	"go-rash-triage/pkg/models"
	"go-rash-triage/pkg/validation"
)

// Image is an uploaded photo and its media type
type Image struct {
	Data      []byte
	MediaType string
	Filename  string
}

// Size returns the image size in bytes
func (i Image) Size() int64 {
	return int64(len(i.Data))
}

// RawInput is what a caller hands over before any validation
type RawInput struct {
	// Image is nil when no photo was supplied
	Image *Image
	// Diseases holds comma separated label filters, possibly repeated
	Diseases []string
	// PatientContextJSON is the JSON encoded patient context, or empty
	PatientContextJSON string
}

// AnalysisRequest is a fully validated request ready for the model
type AnalysisRequest struct {
	Image           Image
	LabelFilter     []string
	EffectiveLabels []triage.Label
	PatientContext  models.PatientContext
	Instruction     string
}

type userPayload struct {
	Diseases       []string               `json:"diseases"`
	PatientContext *models.PatientContext `json:"patient_context,omitempty"`
}

// UserText is the JSON text part sent next to the image
func (r *AnalysisRequest) UserText() (string, error) {
	payload := userPayload{Diseases: triage.Strings(r.EffectiveLabels)}
	if !r.PatientContext.IsEmpty() {
		pc := r.PatientContext
		payload.PatientContext = &pc
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode user payload: %w", err)
	}
	return string(encoded), nil
}

// GenerateRequest converts the request into one provider call
func (r *AnalysisRequest) GenerateRequest() (*upstream.GenerateRequest, error) {
	text, err := r.UserText()
	if err != nil {
		return nil, err
	}
	return &upstream.GenerateRequest{
		SystemInstruction: r.Instruction,
		Text:              text,
		Image: &upstream.InlineImage{
			MediaType: r.Image.MediaType,
			Data:      r.Image.Data,
		},
		Schema: AnalysisSchema(r.EffectiveLabels),
	}, nil
}

// requestBuilder implements RequestBuilder
type requestBuilder struct {
	opts      AnalysisOptions
	validator *validation.PatientContextValidator
}

// NewRequestBuilder creates a builder. A nil validator uses default rules.
func NewRequestBuilder(opts AnalysisOptions, validator *validation.PatientContextValidator) RequestBuilder {
	if validator == nil {
		validator = validation.NewPatientContextValidator()
	}
	if opts.MaxImageBytes <= 0 {
		opts.MaxImageBytes = MaxImageBytes
	}
	if opts.Instruction == "" {
		opts.Instruction = DefaultInstruction
	}
	return &requestBuilder{opts: opts, validator: validator}
}

// Build validates input in a fixed order: image presence, image size and
// type, effective labels, then patient context.
func (b *requestBuilder) Build(input RawInput) (*AnalysisRequest, error) {
	if input.Image == nil || len(input.Image.Data) == 0 {
		return nil, apperrors.NewValidationError(apperrors.CodeMissingImageOrLabels, "no image supplied", nil)
	}

	img, err := b.checkImage(*input.Image)
	if err != nil {
		return nil, err
	}

	filter := triage.ParseLabelFilter(input.Diseases...)
	effective := triage.EffectiveLabels(filter)
	if len(effective) == 0 {
		return nil, apperrors.NewValidationError(apperrors.CodeMissingImageOrLabels, "no allowed label left to score", nil).
			WithDetails(unknownLabelDetails(filter)...)
	}

	pc, err := b.parsePatientContext(input.PatientContextJSON)
	if err != nil {
		return nil, err
	}

	return &AnalysisRequest{
		Image:           img,
		LabelFilter:     filter,
		EffectiveLabels: effective,
		PatientContext:  pc,
		Instruction:     b.opts.Instruction,
	}, nil
}

func (b *requestBuilder) checkImage(img Image) (Image, error) {
	if img.Size() > b.opts.MaxImageBytes {
		return Image{}, apperrors.NewValidationError(apperrors.CodeImageTooLarge,
			fmt.Sprintf("image is %d bytes, limit is %d", img.Size(), b.opts.MaxImageBytes), nil).
			WithStatus(http.StatusRequestEntityTooLarge)
	}

	mediaType := baseMediaType(img.MediaType)
	if b.opts.SniffMediaType && (mediaType == "" || mediaType == "application/octet-stream") {
		mediaType = baseMediaType(mimetype.Detect(img.Data).String())
	}
	if !strings.HasPrefix(mediaType, "image/") {
		return Image{}, apperrors.NewValidationError(apperrors.CodeInvalidImage,
			fmt.Sprintf("only image files are allowed, got %q", mediaType), nil)
	}
	img.MediaType = mediaType
	return img, nil
}

func (b *requestBuilder) parsePatientContext(raw string) (models.PatientContext, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return models.PatientContext{}, nil
	}

	var decoded interface{}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return models.PatientContext{}, apperrors.NewValidationError(apperrors.CodeInvalidPatientContextJSON,
			fmt.Sprintf("patient_context is not valid JSON: %v", err), err)
	}
	if decoded == nil {
		return models.PatientContext{}, nil
	}
	fields, ok := decoded.(map[string]interface{})
	if !ok {
		return models.PatientContext{}, apperrors.NewValidationError(apperrors.CodeInvalidPatientContextJSON,
			"patient_context must be a JSON object", nil)
	}

	pc, problems := b.validator.Validate(fields)
	if len(problems) > 0 {
		return models.PatientContext{}, apperrors.NewValidationError(apperrors.CodeInvalidPatientContext,
			"patient context failed validation", nil).WithDetails(problems...)
	}
	return pc, nil
}

func unknownLabelDetails(filter []string) []string {
	var details []string
	for _, name := range triage.UnknownLabels(filter) {
		if suggestion, ok := triage.Suggest(name); ok {
			details = append(details, fmt.Sprintf("unknown label %q (did you mean %q?)", name, suggestion))
		} else {
			details = append(details, fmt.Sprintf("unknown label %q", name))
		}
	}
	return details
}

func baseMediaType(value string) string {
	if i := strings.Index(value, ";"); i >= 0 {
		value = value[:i]
	}
	return strings.ToLower(strings.TrimSpace(value))
}
