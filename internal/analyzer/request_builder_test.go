package analyzer

import (
	"encoding/json"
	"net/http"
	"reflect"
	"strings"
	"testing"

	apperrors "go-rash-triage/internal/errors"
	"go-rash-triage/internal/triage"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func testImage() *Image {
	return &Image{Data: pngBytes, MediaType: "image/png", Filename: "rash.png"}
}

func newTestBuilder() RequestBuilder {
	return NewRequestBuilder(DefaultOptions(), nil)
}

func expectCode(t *testing.T, err error, code string) *apperrors.AppError {
	t.Helper()
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		t.Fatalf("Expected AppError %s, got %v", code, err)
	}
	if appErr.Code != code {
		t.Fatalf("Expected code %s, got %s (%v)", code, appErr.Code, err)
	}
	return appErr
}

func TestBuild_FullLabelSetWithFeverDerived(t *testing.T) {
	req, err := newTestBuilder().Build(RawInput{
		Image:              testImage(),
		PatientContextJSON: `{"age_months": 14, "temperature_celsius": 39.5}`,
	})
	if err != nil {
		t.Fatalf("Expected valid request, got %v", err)
	}

	if !reflect.DeepEqual(req.EffectiveLabels, triage.AllowedLabels()) {
		t.Errorf("Expected full allowed set, got %v", req.EffectiveLabels)
	}
	if req.PatientContext.AgeMonths == nil || *req.PatientContext.AgeMonths != 14 {
		t.Error("Expected age_months 14")
	}
	if req.PatientContext.FeverPresent == nil || !*req.PatientContext.FeverPresent {
		t.Error("Expected fever_present derived true")
	}
	if req.Instruction != DefaultInstruction {
		t.Error("Expected default instruction")
	}
}

func TestBuild_FilterIntersection(t *testing.T) {
	req, err := newTestBuilder().Build(RawInput{
		Image:    testImage(),
		Diseases: []string{"measles,unknown_label"},
	})
	if err != nil {
		t.Fatalf("Expected valid request, got %v", err)
	}
	if !reflect.DeepEqual(req.EffectiveLabels, []triage.Label{triage.Measles}) {
		t.Errorf("Expected [measles], got %v", req.EffectiveLabels)
	}
	if !reflect.DeepEqual(req.LabelFilter, []string{"measles", "unknown_label"}) {
		t.Errorf("Expected the parsed filter to be kept, got %v", req.LabelFilter)
	}
}

func TestBuild_EmptyIntersection(t *testing.T) {
	_, err := newTestBuilder().Build(RawInput{
		Image:    testImage(),
		Diseases: []string{"unknown_label_only"},
	})
	appErr := expectCode(t, err, apperrors.CodeMissingImageOrLabels)
	if appErr.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", appErr.StatusCode)
	}
}

func TestBuild_EmptyIntersectionSuggestsLabel(t *testing.T) {
	_, err := newTestBuilder().Build(RawInput{
		Image:    testImage(),
		Diseases: []string{"measels"},
	})
	appErr := expectCode(t, err, apperrors.CodeMissingImageOrLabels)
	if len(appErr.Details) != 1 || !strings.Contains(appErr.Details[0], `"measles"`) {
		t.Errorf("Expected a measles suggestion, got %v", appErr.Details)
	}
}

func TestBuild_MissingImage(t *testing.T) {
	for name, img := range map[string]*Image{
		"nil":   nil,
		"empty": {MediaType: "image/png"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := newTestBuilder().Build(RawInput{Image: img, Diseases: []string{"measles"}})
			expectCode(t, err, apperrors.CodeMissingImageOrLabels)
		})
	}
}

func TestBuild_MissingImageCheckedBeforeLabels(t *testing.T) {
	_, err := newTestBuilder().Build(RawInput{Diseases: []string{"nope"}, PatientContextJSON: "{bad"})
	appErr := expectCode(t, err, apperrors.CodeMissingImageOrLabels)
	if len(appErr.Details) != 0 {
		t.Errorf("Expected no label details when the image is missing, got %v", appErr.Details)
	}
}

func TestBuild_ImageTooLarge(t *testing.T) {
	big := make([]byte, MaxImageBytes+1)
	copy(big, pngBytes)
	_, err := newTestBuilder().Build(RawInput{Image: &Image{Data: big, MediaType: "image/png"}})
	appErr := expectCode(t, err, apperrors.CodeImageTooLarge)
	if appErr.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected 413, got %d", appErr.StatusCode)
	}

	exact := make([]byte, MaxImageBytes)
	copy(exact, pngBytes)
	if _, err := newTestBuilder().Build(RawInput{Image: &Image{Data: exact, MediaType: "image/png"}}); err != nil {
		t.Errorf("Expected an image of exactly 5 MiB to pass, got %v", err)
	}
}

func TestBuild_MediaType(t *testing.T) {
	tests := []struct {
		name     string
		declared string
		data     []byte
		want     string
		wantErr  bool
	}{
		{"declared image kept", "image/jpeg", pngBytes, "image/jpeg", false},
		{"parameters stripped", "IMAGE/PNG; foo=bar", pngBytes, "image/png", false},
		{"missing type sniffed", "", pngBytes, "image/png", false},
		{"octet-stream sniffed", "application/octet-stream", pngBytes, "image/png", false},
		{"text rejected", "text/plain", []byte("hello"), "", true},
		{"sniffed text rejected", "", []byte("just some text"), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := newTestBuilder().Build(RawInput{Image: &Image{Data: tt.data, MediaType: tt.declared}})
			if tt.wantErr {
				expectCode(t, err, apperrors.CodeInvalidImage)
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if req.Image.MediaType != tt.want {
				t.Errorf("Expected media type %s, got %s", tt.want, req.Image.MediaType)
			}
		})
	}
}

func TestBuild_PatientContextErrors(t *testing.T) {
	_, err := newTestBuilder().Build(RawInput{Image: testImage(), PatientContextJSON: `{"age_months": 14`})
	expectCode(t, err, apperrors.CodeInvalidPatientContextJSON)

	_, err = newTestBuilder().Build(RawInput{Image: testImage(), PatientContextJSON: `[1,2]`})
	expectCode(t, err, apperrors.CodeInvalidPatientContextJSON)

	_, err = newTestBuilder().Build(RawInput{Image: testImage(), PatientContextJSON: `{"age_months": 300, "temperature_celsius": 20}`})
	appErr := expectCode(t, err, apperrors.CodeInvalidPatientContext)
	if len(appErr.Details) != 2 {
		t.Errorf("Expected both fields reported, got %v", appErr.Details)
	}

	req, err := newTestBuilder().Build(RawInput{Image: testImage(), PatientContextJSON: `null`})
	if err != nil || !req.PatientContext.IsEmpty() {
		t.Errorf("Expected null context to be treated as absent, got %v", err)
	}
}

func TestAnalysisRequest_UserText(t *testing.T) {
	req, err := newTestBuilder().Build(RawInput{
		Image:              testImage(),
		Diseases:           []string{"varicella, measles"},
		PatientContextJSON: `{"age_months": 30, "medication": {"name": "ibuprofen", "antibiotic": false}}`,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	text, err := req.UserText()
	if err != nil {
		t.Fatalf("UserText: %v", err)
	}
	var decoded struct {
		Diseases       []string               `json:"diseases"`
		PatientContext map[string]interface{} `json:"patient_context"`
	}
	if err := json.Unmarshal([]byte(text), &decoded); err != nil {
		t.Fatalf("user text is not JSON: %v", err)
	}
	if !reflect.DeepEqual(decoded.Diseases, []string{"measles", "varicella"}) {
		t.Errorf("Expected effective labels in allowed order, got %v", decoded.Diseases)
	}
	if decoded.PatientContext["age_months"] != float64(30) || decoded.PatientContext["medication"] == nil {
		t.Errorf("Expected validated and pass-through fields, got %v", decoded.PatientContext)
	}

	gen, err := req.GenerateRequest()
	if err != nil {
		t.Fatalf("GenerateRequest: %v", err)
	}
	if gen.Image == nil || gen.Image.MediaType != "image/png" || len(gen.Image.Data) != len(pngBytes) {
		t.Error("Expected the image to be passed through untouched")
	}
	if gen.Schema == nil || gen.SystemInstruction != DefaultInstruction || gen.Text != text {
		t.Error("Expected schema, instruction and text on the generate request")
	}
}

func TestAnalysisRequest_UserTextOmitsEmptyContext(t *testing.T) {
	req, _ := newTestBuilder().Build(RawInput{Image: testImage(), Diseases: []string{"tinea"}})
	text, _ := req.UserText()
	if text != `{"diseases":["tinea"]}` {
		t.Errorf("Unexpected user text %s", text)
	}
}
