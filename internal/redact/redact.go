// Package redact masks credentials and personal data in text and
// key/value maps before they leave the process.
package redact

import "strings"

// Mask replaces a redacted map value.
const Mask = "***"

// DefaultKeys are metadata keys whose values are always masked.
var DefaultKeys = []string{
	"password", "passwd", "secret", "token", "api_key", "apikey",
	"authorization", "cookie", "set-cookie", "x-api-key",
	"access_key", "private_key", "credit_card", "card_number", "ssn",
}

// Redactor masks sensitive keys and patterns.
// A Redactor is immutable and safe for concurrent use.
type Redactor struct {
	keys     map[string]bool
	patterns []Pattern
}

// New returns a Redactor over DefaultKeys plus extraKeys and DefaultPatterns.
func New(extraKeys ...string) *Redactor {
	keys := make(map[string]bool, len(DefaultKeys)+len(extraKeys))
	for _, k := range DefaultKeys {
		keys[normalizeKey(k)] = true
	}
	for _, k := range extraKeys {
		if k = normalizeKey(k); k != "" {
			keys[k] = true
		}
	}
	return &Redactor{keys: keys, patterns: DefaultPatterns}
}

func normalizeKey(k string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(k)), "-", "_")
}

// String replaces every match in text with [REDACTED:<TYPE>].
func (r *Redactor) String(text string) string {
	matches := Scan(text, r.patterns)
	if len(matches) == 0 {
		return text
	}
	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(text[last:m.Start])
		b.WriteString("[REDACTED:")
		b.WriteString(string(m.Type))
		b.WriteString("]")
		last = m.End
	}
	b.WriteString(text[last:])
	return b.String()
}

// Map returns a copy of data with sensitive keys masked and the remaining
// values scanned. A nil map stays nil.
func (r *Redactor) Map(data map[string]string) map[string]string {
	if data == nil {
		return nil
	}
	out := make(map[string]string, len(data))
	for k, v := range data {
		if r.keys[normalizeKey(k)] {
			out[k] = Mask
			continue
		}
		out[k] = r.String(v)
	}
	return out
}

// Leaks reports the sensitive values still present in text.
func (r *Redactor) Leaks(text string) []string {
	var leaks []string
	for _, m := range Scan(text, r.patterns) {
		leaks = append(leaks, m.Value)
	}
	return leaks
}
