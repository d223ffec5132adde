package models

import "strings"

type Provider_ID string

const (
	Provider_OpenAI     Provider_ID = "openai"
	Provider_Gemini     Provider_ID = "gemini"
	Provider_Claude     Provider_ID = "claude"
	Provider_Perplexity Provider_ID = "perplexity"
	// Provider_Auto is only valid as a user override.
	Provider_Auto Provider_ID = "auto"
)

// Providers lists the concrete providers in display order.
var Providers = []Provider_ID{Provider_OpenAI, Provider_Gemini, Provider_Claude, Provider_Perplexity}

// Provider_Info is the user-facing description of a provider.
type Provider_Info struct {
	Name string `json:"name"`
	Icon string `json:"icon"`
}

var Provider_Infos = map[Provider_ID]Provider_Info{
	Provider_OpenAI:     {Name: "GPT-4o + DALL-E", Icon: "🤖"},
	Provider_Gemini:     {Name: "Gemini Flash", Icon: "✨"},
	Provider_Claude:     {Name: "Claude Sonnet", Icon: "🧠"},
	Provider_Perplexity: {Name: "Perplexity Sonar", Icon: "🔎"},
	Provider_Auto:       {Name: "Smart Auto", Icon: "⚡"},
}

// Display_Name returns the provider's human-readable name, or "The AI" when unknown.
func Display_Name(id Provider_ID) string {
	if info, ok := Provider_Infos[id]; ok {
		return info.Name
	}
	return "The AI"
}

// Parse_Provider_ID accepts any case; unknown values map to Provider_Auto.
func Parse_Provider_ID(s string) Provider_ID {
	id := Provider_ID(strings.ToLower(strings.TrimSpace(s)))
	if id == Provider_Auto {
		return id
	}
	for _, p := range Providers {
		if p == id {
			return id
		}
	}
	return Provider_Auto
}

// Credentials are user-supplied API keys, one per provider.
type Credentials struct {
	OpenAI     string `json:"openai"`
	Gemini     string `json:"gemini"`
	Claude     string `json:"claude"`
	Perplexity string `json:"perplexity,omitempty"`
}

// Key returns the credential for a provider.
func (c Credentials) Key(id Provider_ID) string {
	switch id {
	case Provider_OpenAI:
		return c.OpenAI
	case Provider_Gemini:
		return c.Gemini
	case Provider_Claude:
		return c.Claude
	case Provider_Perplexity:
		return c.Perplexity
	}
	return ""
}

// Trimmed returns a copy with surrounding whitespace removed from every key.
func (c Credentials) Trimmed() Credentials {
	return Credentials{
		OpenAI:     strings.TrimSpace(c.OpenAI),
		Gemini:     strings.TrimSpace(c.Gemini),
		Claude:     strings.TrimSpace(c.Claude),
		Perplexity: strings.TrimSpace(c.Perplexity),
	}
}

// Availability maps each provider to whether its credential looks usable.
// It is derived, never persisted.
type Availability map[Provider_ID]bool

// Any reports whether at least one provider is available.
func (a Availability) Any() bool {
	for _, ok := range a {
		if ok {
			return true
		}
	}
	return false
}

// Valid_Key applies the syntactic credential check for one provider. No
// liveness check is made.
func Valid_Key(id Provider_ID, key string) bool {
	key = strings.TrimSpace(key)
	if key == "" {
		return false
	}
	switch id {
	case Provider_OpenAI:
		return strings.HasPrefix(key, "sk-") || strings.HasPrefix(key, "sk-proj-")
	case Provider_Gemini:
		return strings.HasPrefix(key, "AIza")
	case Provider_Claude:
		return strings.HasPrefix(key, "sk-ant-") || len(key) > 30
	case Provider_Perplexity:
		return strings.HasPrefix(key, "pplx-")
	}
	return false
}

func Compute_Availability(c Credentials) Availability {
	a := make(Availability, len(Providers))
	for _, id := range Providers {
		a[id] = Valid_Key(id, c.Key(id))
	}
	return a
}
