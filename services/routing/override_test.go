package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name     string
		override Override
		expected SanitizedOverride
	}{
		{
			name:     "baseline",
			override: Override{},
			expected: SanitizedOverride{},
		},
		{
			name:     "plain fields pass through",
			override: Override{BaseURL: "https://b", Model: "m2"},
			expected: SanitizedOverride{"base_url": "https://b", "model": "m2"},
		},
		{
			name: "sensitive fields redacted",
			override: Override{
				Provider:       "openai",
				Model:          "gpt-4o",
				DefaultHeaders: map[string]string{"Authorization": "Bearer secret"},
				ExtraHeaders:   map[string]string{"Authorization": "Bearer secret"},
				APIKey:         "sk-secret",
			},
			expected: SanitizedOverride{
				"provider":        "openai",
				"model":           "gpt-4o",
				"default_headers": "[set]",
				"extra_headers":   "[set]",
				"api_key":         "[set]",
			},
		},
		{
			name:     "only present keys are redacted",
			override: Override{Provider: "openai", Model: "m1", APIKey: "sk-secret"},
			expected: SanitizedOverride{"provider": "openai", "model": "m1", "api_key": "[set]"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Sanitize(tt.override))
		})
	}
}

func TestSanitize_DoesNotMutateInput(t *testing.T) {
	headers := map[string]string{"X-Key": "secret"}
	o := Override{Provider: "openai", Model: "m", DefaultHeaders: headers, ExtraHeaders: headers, APIKey: "k"}

	_ = Sanitize(o)

	assert.Equal(t, "secret", o.DefaultHeaders["X-Key"])
	assert.Equal(t, "secret", o.ExtraHeaders["X-Key"])
	assert.Equal(t, "k", o.APIKey)
}

func TestSanitizedOverride_MarshalLogObject(t *testing.T) {
	enc := zapcore.NewMapObjectEncoder()
	s := Sanitize(Override{Model: "m2", ExtraHeaders: map[string]string{"a": "b"}})

	assert.NoError(t, s.MarshalLogObject(enc))
	assert.Equal(t, map[string]interface{}{"model": "m2", "extra_headers": "[set]"}, enc.Fields)
}

func TestOverride_IsBaseline(t *testing.T) {
	assert.True(t, Override{}.IsBaseline())
	assert.True(t, Override{DefaultHeaders: map[string]string{}}.IsBaseline())
	assert.False(t, Override{Model: "m"}.IsBaseline())
	assert.False(t, Override{APIKey: "k"}.IsBaseline())
}

func TestOverride_Resolve(t *testing.T) {
	snap := Snapshot{BaseURL: "A", Model: "m1"}

	assert.Equal(t, IdentityKey{"openrouter", "m1", "A"}, Override{}.Resolve(snap))
	assert.Equal(t, IdentityKey{"openai", "m2", "B"}, Override{Provider: "openai", Model: "m2", BaseURL: "B"}.Resolve(snap))
}
