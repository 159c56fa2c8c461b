package routing

import (
	"sort"

	"go.uber.org/zap/zapcore"
)

const (
	// ProviderOpenRouter is the implicit provider of every override without one
	ProviderOpenRouter = "openrouter"

	// ProviderOpenAI talks to the OpenAI API directly
	ProviderOpenAI = "openai"

	// RedactedMarker replaces sensitive values in sanitized overrides
	RedactedMarker = "[set]"
)

// Override keys as they appear in sanitized log output
const (
	KeyBaseURL        = "base_url"
	KeyModel          = "model"
	KeyProvider       = "provider"
	KeyDefaultHeaders = "default_headers"
	KeyExtraHeaders   = "extra_headers"
	KeyAPIKey         = "api_key"
)

// Snapshot is the read-only LLM configuration for one pipeline run
type Snapshot struct {
	BaseURL          string
	Model            string
	FallbackBaseURLs []string
	FallbackModels   []string
	Headers          map[string]string
}

// Override describes how one attempt deviates from the Snapshot.
// A field is present when it is non-empty; the zero Override is the baseline attempt.
type Override struct {
	BaseURL        string            `json:"base_url,omitempty"`
	Model          string            `json:"model,omitempty"`
	Provider       string            `json:"provider,omitempty"`
	DefaultHeaders map[string]string `json:"default_headers,omitempty"`
	ExtraHeaders   map[string]string `json:"extra_headers,omitempty"`
	APIKey         string            `json:"api_key,omitempty"`
}

// IsBaseline reports whether the override carries no deviation at all
func (o Override) IsBaseline() bool {
	return o.BaseURL == "" &&
		o.Model == "" &&
		o.Provider == "" &&
		len(o.DefaultHeaders) == 0 &&
		len(o.ExtraHeaders) == 0 &&
		o.APIKey == ""
}

// IdentityKey identifies the backend an override resolves to
type IdentityKey struct {
	Provider string
	Model    string
	BaseURL  string
}

// Resolve fills absent fields from the snapshot and returns the effective identity
func (o Override) Resolve(snap Snapshot) IdentityKey {
	key := IdentityKey{
		Provider: o.Provider,
		Model:    o.Model,
		BaseURL:  o.BaseURL,
	}
	if key.Provider == "" {
		key.Provider = ProviderOpenRouter
	}
	if key.Model == "" {
		key.Model = snap.Model
	}
	if key.BaseURL == "" {
		key.BaseURL = snap.BaseURL
	}
	return key
}

// SanitizedOverride is a log-safe copy of an Override
type SanitizedOverride map[string]string

// MarshalLogObject implements zapcore.ObjectMarshaler with a stable key order
func (s SanitizedOverride) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		enc.AddString(k, s[k])
	}
	return nil
}

// Sanitize returns a copy of the override safe to log.
// Header maps and the API key are replaced by RedactedMarker when present.
func Sanitize(o Override) SanitizedOverride {
	out := make(SanitizedOverride, 6)
	if o.BaseURL != "" {
		out[KeyBaseURL] = o.BaseURL
	}
	if o.Model != "" {
		out[KeyModel] = o.Model
	}
	if o.Provider != "" {
		out[KeyProvider] = o.Provider
	}
	if len(o.DefaultHeaders) > 0 {
		out[KeyDefaultHeaders] = RedactedMarker
	}
	if len(o.ExtraHeaders) > 0 {
		out[KeyExtraHeaders] = RedactedMarker
	}
	if o.APIKey != "" {
		out[KeyAPIKey] = RedactedMarker
	}
	return out
}
