package orchestrator

// Config holds the routing configuration consulted by every dispatch
type Config struct {
	// EnabledProviders is the set of providers that may be tried, in no particular order
	EnabledProviders []string `json:"enabledProviders"`

	// PreferredProviders is tried first, in the listed order
	PreferredProviders []string `json:"preferredProviders"`

	// FallbackToFree keeps trying the remaining candidates after a failure.
	// When false, dispatch stops after the first attempted provider fails.
	FallbackToFree bool `json:"fallbackToFree"`
}

// PartialConfig is a configuration update. Nil fields are left unchanged;
// a non-nil empty slice clears the field.
type PartialConfig struct {
	EnabledProviders   *[]string `json:"enabledProviders,omitempty"`
	PreferredProviders *[]string `json:"preferredProviders,omitempty"`
	FallbackToFree     *bool     `json:"fallbackToFree,omitempty"`
}

// DefaultConfig enables every given provider with free fallback on
func DefaultConfig(registered []string) Config {
	return Config{
		EnabledProviders:   copyStrings(registered),
		PreferredProviders: []string{},
		FallbackToFree:     true,
	}
}

// Clone returns a deep copy so callers can never alias the live snapshot
func (c Config) Clone() Config {
	return Config{
		EnabledProviders:   copyStrings(c.EnabledProviders),
		PreferredProviders: copyStrings(c.PreferredProviders),
		FallbackToFree:     c.FallbackToFree,
	}
}

// Merge returns a new Config with the fields present in p applied over c
func (c Config) Merge(p PartialConfig) Config {
	next := c.Clone()
	if p.EnabledProviders != nil {
		next.EnabledProviders = copyStrings(*p.EnabledProviders)
	}
	if p.PreferredProviders != nil {
		next.PreferredProviders = copyStrings(*p.PreferredProviders)
	}
	if p.FallbackToFree != nil {
		next.FallbackToFree = *p.FallbackToFree
	}
	return next
}

// IsEmpty reports whether the update carries no fields
func (p PartialConfig) IsEmpty() bool {
	return p.EnabledProviders == nil && p.PreferredProviders == nil && p.FallbackToFree == nil
}

// Full converts a complete configuration into an update that replaces every field
func (c Config) Full() PartialConfig {
	enabled := copyStrings(c.EnabledProviders)
	preferred := copyStrings(c.PreferredProviders)
	fallback := c.FallbackToFree
	return PartialConfig{
		EnabledProviders:   &enabled,
		PreferredProviders: &preferred,
		FallbackToFree:     &fallback,
	}
}

func copyStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
