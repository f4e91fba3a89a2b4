package providers

import (
	"context"
	"time"
)

// Provider represents a single AI backend behind a uniform streaming chat contract
type Provider interface {
	// Name returns the provider name (e.g., "openai", "groq", "perplexity")
	Name() string

	// IsAvailable reports whether the backend credential is present and plausible.
	// It never performs network I/O.
	IsAvailable() bool

	// Cost returns the pricing tier descriptor (e.g., "free", "paid")
	Cost() string

	// StreamChat issues a streaming chat completion and returns the raw output stream
	StreamChat(ctx context.Context, messages []Message) (*Stream, error)
}

// Role identifies the author of a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message represents a single message in a conversation
type Message struct {
	// Role can be "system", "user", or "assistant"
	Role Role `json:"role"`

	// Content is the message text
	Content string `json:"content"`
}

// Descriptor is a point-in-time view of a registered provider
type Descriptor struct {
	Name      string `json:"name"`
	Cost      string `json:"cost"`
	Available bool   `json:"available"`
}

// Describe builds a Descriptor from the provider's current state
func Describe(p Provider) Descriptor {
	return Descriptor{
		Name:      p.Name(),
		Cost:      p.Cost(),
		Available: p.IsAvailable(),
	}
}

// Cost tiers used by the built-in presets
const (
	CostFree         = "free"
	CostPaid         = "paid"
	CostPaidResearch = "paid (research-focused)"
)

// Adapter defaults
const (
	DefaultMinKeyLength = 20
	DefaultTimeout      = 30 * time.Second
	DefaultTemperature  = 0.7
	DefaultMaxTokens    = 2048
)

// CredentialSource returns the current credential for a backend.
// It is consulted on every availability check so that the answer
// reflects the live environment rather than a startup snapshot.
type CredentialSource func() string

// StaticCredential returns a CredentialSource that always yields key
func StaticCredential(key string) CredentialSource {
	return func() string { return key }
}

// ProviderConfig holds common configuration for providers
type ProviderConfig struct {
	// Name is the registry key of the adapter
	Name string

	// Cost is the pricing tier descriptor
	Cost string

	// Credential supplies the API key
	Credential CredentialSource

	// BaseURL for the API
	BaseURL string

	// Model is the fixed model id sent with every request
	Model string

	// Temperature and MaxTokens are fixed per-adapter defaults
	Temperature float64
	MaxTokens   int

	// MinKeyLength is the shortest credential considered plausible
	MinKeyLength int

	// Timeout bounds how long the backend may take to start responding
	Timeout time.Duration

	// Additional headers
	Headers map[string]string
}

// DefaultProviderConfig returns a sensible default configuration
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Temperature:  DefaultTemperature,
		MaxTokens:    DefaultMaxTokens,
		MinKeyLength: DefaultMinKeyLength,
		Timeout:      DefaultTimeout,
		Headers:      make(map[string]string),
	}
}
