package invoke

import (
	"time"

	"github.com/aj47/nvidia-control-center-sub003/llm"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 1000 * time.Millisecond
	DefaultMaxDelay   = 30000 * time.Millisecond
)

// CallConfig is the per-call configuration surface. Zero values fall back to
// the invoker defaults, then to the package defaults.
type CallConfig struct {
	// MaxRetries bounds retries of non-rate-limit failures. Negative disables retries.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	Provider  string
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int64
}

// Policy is the resolved retry policy for one call.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
		MaxDelay:   DefaultMaxDelay,
	}
}

// merge fills zero fields of c from fallback.
func (c CallConfig) merge(fallback CallConfig) CallConfig {
	if c.MaxRetries == 0 {
		c.MaxRetries = fallback.MaxRetries
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = fallback.BaseDelay
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = fallback.MaxDelay
	}
	if c.Provider == "" {
		c.Provider = fallback.Provider
	}
	if c.BaseURL == "" {
		c.BaseURL = fallback.BaseURL
	}
	if c.APIKey == "" {
		c.APIKey = fallback.APIKey
	}
	if c.Model == "" {
		c.Model = fallback.Model
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = fallback.MaxTokens
	}
	return c
}

// Policy resolves the retry policy, applying package defaults.
func (c CallConfig) Policy() Policy {
	p := DefaultPolicy()
	switch {
	case c.MaxRetries < 0:
		p.MaxRetries = 0
	case c.MaxRetries > 0:
		p.MaxRetries = c.MaxRetries
	}
	if c.BaseDelay > 0 {
		p.BaseDelay = c.BaseDelay
	}
	if c.MaxDelay > 0 {
		p.MaxDelay = c.MaxDelay
	}
	return p
}

func (c CallConfig) override() llm.Override {
	return llm.Override{
		Provider: c.Provider,
		Model:    c.Model,
		APIKey:   c.APIKey,
		BaseURL:  c.BaseURL,
	}
}
