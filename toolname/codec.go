// Package toolname translates tool names between their internal form, which
// may carry a "server:tool" namespace and arbitrary characters, and the
// restricted alphabet providers accept ([A-Za-z0-9_-], at most 128 chars).
package toolname

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

const (
	// MaxLength is the longest tool name providers accept.
	MaxLength = 128

	// NamespaceSeparator splits the server from the tool in internal names.
	NamespaceSeparator = ":"

	// SeparatorToken replaces NamespaceSeparator in sanitized names. It is made
	// of legal characters only, so it survives sanitization and can be reversed.
	SeparatorToken = "__COLON__"

	suffixSeparator = "_"
)

// DefaultGatewayPrefixes are prefixes some proxies prepend to tool names in
// their responses.
var DefaultGatewayPrefixes = []string{"proxy_"}

var illegalChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// Sanitize rewrites name into the provider alphabet. A non-empty suffix is
// appended after truncating the base so the suffix is never cut off.
func Sanitize(name, suffix string) string {
	base := strings.ReplaceAll(name, NamespaceSeparator, SeparatorToken)
	base = illegalChars.ReplaceAllString(base, "_")

	if suffix == "" {
		return truncate(base, MaxLength)
	}
	suffix = illegalChars.ReplaceAllString(suffix, "_")
	return truncate(base, MaxLength-len(suffix)-len(suffixSeparator)) + suffixSeparator + suffix
}

func truncate(s string, n int) string {
	if n < 0 {
		n = 0
	}
	if len(s) > n {
		return s[:n]
	}
	return s
}

// Mapping pairs sanitized names with their originals for one invocation.
type Mapping struct {
	toOriginal  map[string]string
	toSanitized map[string]string
}

func newMapping() *Mapping {
	return &Mapping{
		toOriginal:  make(map[string]string),
		toSanitized: make(map[string]string),
	}
}

// Sanitized returns the sanitized name assigned to original.
func (m *Mapping) Sanitized(original string) (string, bool) {
	if m == nil {
		return "", false
	}
	s, ok := m.toSanitized[original]
	return s, ok
}

// Original returns the original name for a sanitized one.
func (m *Mapping) Original(sanitized string) (string, bool) {
	if m == nil {
		return "", false
	}
	o, ok := m.toOriginal[sanitized]
	return o, ok
}

// Len returns the number of mapped names.
func (m *Mapping) Len() int {
	if m == nil {
		return 0
	}
	return len(m.toOriginal)
}

// Codec builds mappings and restores names returned by a provider.
type Codec struct {
	gatewayPrefixes []string
	logger          zerolog.Logger
}

// NewCodec creates a Codec. A nil prefixes slice selects DefaultGatewayPrefixes;
// an empty non-nil slice disables prefix stripping.
func NewCodec(prefixes []string, logger zerolog.Logger) *Codec {
	if prefixes == nil {
		prefixes = DefaultGatewayPrefixes
	}
	return &Codec{
		gatewayPrefixes: prefixes,
		logger:          logger.With().Str("component", "toolNameCodec").Logger(),
	}
}

// BuildMapping sanitizes names in order. When a sanitized name is already
// claimed by a different original, the later name gets a numeric suffix
// counted per base name.
func (c *Codec) BuildMapping(names []string) *Mapping {
	m := newMapping()
	counters := make(map[string]int)

	for _, original := range names {
		if _, ok := m.toSanitized[original]; ok {
			continue
		}

		base := Sanitize(original, "")
		sanitized := base
		for {
			claimedBy, taken := m.toOriginal[sanitized]
			if !taken || claimedBy == original {
				break
			}
			counters[base]++
			sanitized = Sanitize(original, strconv.Itoa(counters[base]))
		}

		if sanitized != base {
			c.logger.Warn().
				Str("original", original).
				Str("base", base).
				Str("sanitized", sanitized).
				Str("claimed_by", m.toOriginal[base]).
				Msg("Tool name collision after sanitization, added suffix")
		}

		m.toOriginal[sanitized] = original
		m.toSanitized[original] = sanitized
	}
	return m
}

// Restore maps a provider-returned name back to its original. The mapping is
// consulted first, then again with a known gateway prefix stripped. Without a
// hit only the separator substitution is reversed.
func (c *Codec) Restore(name string, m *Mapping) string {
	if m != nil {
		if original, ok := m.Original(name); ok {
			return original
		}
		// Only strip prefixes when the mapping can confirm the result.
		for _, prefix := range c.gatewayPrefixes {
			if prefix == "" || !strings.HasPrefix(name, prefix) {
				continue
			}
			if original, ok := m.Original(strings.TrimPrefix(name, prefix)); ok {
				c.logger.Debug().Str("name", name).Str("prefix", prefix).Msg("Stripped gateway prefix from tool name")
				return original
			}
		}
	}
	return RestoreSeparator(name)
}

// RestoreSeparator reverses only the namespace separator substitution.
func RestoreSeparator(name string) string {
	return strings.ReplaceAll(name, SeparatorToken, NamespaceSeparator)
}
