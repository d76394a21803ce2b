package models

// ErrorResponse is the JSON body of every non-2xx answer
type ErrorResponse struct {
	Error   string   `json:"error"`
	Detail  string   `json:"detail,omitempty"`
	Details []string `json:"details,omitempty"`
	Status  int      `json:"status,omitempty"`
	Raw     string   `json:"raw,omitempty"`
}

// PingResponse answers a successful connectivity probe
type PingResponse struct {
	OK     bool        `json:"ok"`
	Parsed interface{} `json:"parsed"`
	Raw    *string     `json:"raw"`
}

// PingFailure answers a failed connectivity probe
type PingFailure struct {
	OK     bool   `json:"ok"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
}

// DebugResponse reports configuration without calling the upstream provider
type DebugResponse struct {
	OK         bool                   `json:"ok"`
	Server     string                 `json:"server"`
	Provider   string                 `json:"provider"`
	Model      string                 `json:"model"`
	KeyPresent bool                   `json:"key_present"`
	KeyMasked  *string                `json:"key_masked"`
	Cwd        string                 `json:"cwd"`
	Metrics    map[string]interface{} `json:"metrics,omitempty"`
}

// HealthResponse answers GET /health
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Time    string `json:"time"`
}
