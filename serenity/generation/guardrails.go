package generation

import (
	"fmt"
	"regexp"
	"strings"
)

// ControlMarker opens every prompt delimiter; completions are cut at its first occurrence.
const ControlMarker = "<|"

// Guardrails post-processes raw completions.
type Guardrails struct {
	enabled       bool
	outputFilters []*regexp.Regexp
}

// NewGuardrails builds redaction filters for "<word>: value" style leaks of
// each blocked word. Redaction is skipped when enabled is false; marker
// trimming always applies.
func NewGuardrails(enabled bool, blockedWords []string) *Guardrails {
	g := &Guardrails{enabled: enabled}
	for _, w := range blockedWords {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		g.outputFilters = append(g.outputFilters,
			regexp.MustCompile(fmt.Sprintf(`(?i)\b%s\w*\s*[:=]\s*\S+`, regexp.QuoteMeta(w))))
	}
	g.outputFilters = append(g.outputFilters, regexp.MustCompile(`(?i)api[_-]?key\s*[:=]\s*\S+`))
	return g
}

// Clean trims text at the first control marker, strips surrounding
// whitespace, redacts secrets and substitutes EmptyReplyFallback for an
// empty result.
func (g *Guardrails) Clean(text string) string {
	if i := strings.Index(text, ControlMarker); i >= 0 {
		text = text[:i]
	}
	text = strings.TrimSpace(text)
	if g.enabled {
		text = g.SanitizeOutput(text)
	}
	if text == "" {
		return EmptyReplyFallback
	}
	return text
}

// SanitizeOutput masks sensitive information in output.
func (g *Guardrails) SanitizeOutput(output string) string {
	for _, filter := range g.outputFilters {
		output = filter.ReplaceAllString(output, "[REDACTED]")
	}
	return output
}
