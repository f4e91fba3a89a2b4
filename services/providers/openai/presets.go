package openai

import (
	"os"

	"github.com/sanazindustrial/PROFGINE-sub004/services/providers"
)

// Preset describes a backend that speaks the chat-completions protocol
type Preset struct {
	Name    string
	Cost    string
	BaseURL string
	Model   string
	EnvVar  string
}

// Presets lists the built-in backends in registration order
var Presets = []Preset{
	{
		Name:    "openai",
		Cost:    providers.CostPaid,
		BaseURL: defaultBaseURL,
		Model:   "gpt-4o-mini",
		EnvVar:  "OPENAI_API_KEY",
	},
	{
		Name:    "groq",
		Cost:    providers.CostFree,
		BaseURL: "https://api.groq.com/openai/v1",
		Model:   "llama-3.1-8b-instant",
		EnvVar:  "GROQ_API_KEY",
	},
	{
		Name:    "gemini",
		Cost:    providers.CostFree,
		BaseURL: "https://generativelanguage.googleapis.com/v1beta/openai",
		Model:   "gemini-1.5-flash",
		EnvVar:  "GEMINI_API_KEY",
	},
	{
		Name:    "perplexity",
		Cost:    providers.CostPaidResearch,
		BaseURL: "https://api.perplexity.ai",
		Model:   "sonar",
		EnvVar:  "PERPLEXITY_API_KEY",
	},
}

// PresetByName looks up a built-in preset
func PresetByName(name string) (Preset, bool) {
	for _, p := range Presets {
		if p.Name == name {
			return p, true
		}
	}
	return Preset{}, false
}

// EnvCredential reads the credential from the named environment variable on every call
func EnvCredential(envVar string) providers.CredentialSource {
	return func() string {
		return os.Getenv(envVar)
	}
}

// ProviderConfig returns the default adapter configuration for the preset
func (p Preset) ProviderConfig() providers.ProviderConfig {
	cfg := providers.DefaultProviderConfig()
	cfg.Name = p.Name
	cfg.Cost = p.Cost
	cfg.BaseURL = p.BaseURL
	cfg.Model = p.Model
	cfg.Credential = EnvCredential(p.EnvVar)
	return cfg
}
