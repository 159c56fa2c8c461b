package routing

// planProviders is the provider order of the cascade. Every openrouter
// combination is tried before any openai one.
var planProviders = [...]string{ProviderOpenRouter, ProviderOpenAI}

// BuildAttemptPlan expands a snapshot into the ordered list of attempts.
// Providers vary slowest and base URLs fastest, so all base URLs of a model
// are tried before the next model. No two entries share an IdentityKey.
func BuildAttemptPlan(snap Snapshot) []Override {
	baseURLs := dedupe(append([]string{snap.BaseURL}, snap.FallbackBaseURLs...))
	models := dedupe(append([]string{snap.Model}, snap.FallbackModels...))

	plan := make([]Override, 0, len(planProviders)*len(models)*len(baseURLs))
	seen := make(map[IdentityKey]struct{}, cap(plan))

	for _, provider := range planProviders {
		for _, model := range models {
			for _, baseURL := range baseURLs {
				key := IdentityKey{Provider: provider, Model: model, BaseURL: baseURL}
				if _, ok := seen[key]; ok {
					continue
				}
				seen[key] = struct{}{}

				plan = append(plan, buildOverride(snap, provider, model, baseURL))
			}
		}
	}

	if len(plan) == 0 {
		plan = append(plan, Override{})
	}

	return plan
}

func buildOverride(snap Snapshot, provider, model, baseURL string) Override {
	var o Override

	if baseURL != snap.BaseURL {
		o.BaseURL = baseURL
	}

	if provider == ProviderOpenRouter {
		if model != snap.Model {
			o.Model = model
		}
		return o
	}

	// a provider switch always names its model
	o.Provider = provider
	o.Model = model
	if len(snap.Headers) > 0 {
		o.DefaultHeaders = copyHeaders(snap.Headers)
		o.ExtraHeaders = copyHeaders(snap.Headers)
	}
	return o
}

// dedupe keeps the first occurrence of every value
func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func copyHeaders(h map[string]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}
