package validation

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	ErrEmptyEndpoint      = errors.New("endpoint cannot be empty")
	ErrEndpointScheme     = errors.New("endpoint scheme not allowed")
	ErrEndpointHost       = errors.New("endpoint must have a valid host")
	ErrEndpointHasKey     = errors.New("endpoint must not embed credentials")
	ErrEndpointHostDenied = errors.New("endpoint host not allowed")
)

// EndpointValidator checks upstream base URLs taken from configuration
type EndpointValidator struct {
	allowedSchemes []string
	allowedHosts   []string
}

// NewEndpointValidator accepts any http(s) host
func NewEndpointValidator() *EndpointValidator {
	return &EndpointValidator{
		allowedSchemes: []string{"http", "https"},
		allowedHosts:   []string{}, // empty means all hosts allowed
	}
}

// NewEndpointValidatorWithOptions restricts schemes and hosts
func NewEndpointValidatorWithOptions(schemes []string, hosts []string) *EndpointValidator {
	return &EndpointValidator{
		allowedSchemes: schemes,
		allowedHosts:   hosts,
	}
}

// ValidateEndpoint rejects base URLs the upstream clients cannot use. Keys
// travel in headers, so user info or a key query parameter is refused.
func (v *EndpointValidator) ValidateEndpoint(endpoint string) error {
	if strings.TrimSpace(endpoint) == "" {
		return ErrEmptyEndpoint
	}

	parsed, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint format: %w", err)
	}
	if !v.isSchemeAllowed(parsed.Scheme) {
		return fmt.Errorf("%w: %q", ErrEndpointScheme, parsed.Scheme)
	}
	if parsed.Host == "" {
		return ErrEndpointHost
	}
	if parsed.User != nil || parsed.Query().Has("key") {
		return ErrEndpointHasKey
	}
	if !v.isHostAllowed(parsed.Hostname()) {
		return fmt.Errorf("%w: %q", ErrEndpointHostDenied, parsed.Hostname())
	}
	return nil
}

func (v *EndpointValidator) isSchemeAllowed(scheme string) bool {
	for _, allowed := range v.allowedSchemes {
		if scheme == allowed {
			return true
		}
	}
	return false
}

// isHostAllowed returns true if no host restrictions are set
func (v *EndpointValidator) isHostAllowed(host string) bool {
	if len(v.allowedHosts) == 0 {
		return true
	}
	for _, allowed := range v.allowedHosts {
		if host == allowed {
			return true
		}
	}
	return false
}
