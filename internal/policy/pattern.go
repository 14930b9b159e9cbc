package policy

import "strings"

// MatchPattern checks if a value matches a glob-like pattern.
// Supports: *x* (contains), *.ext (suffix), prefix* (prefix), exact match.
// Matching is case-insensitive.
func MatchPattern(pattern, value string) bool {
	if pattern == "" {
		return false
	}
	if pattern == "*" {
		return true
	}

	lowerValue := strings.ToLower(value)
	lowerPattern := strings.ToLower(pattern)

	// *x* — contains
	if len(lowerPattern) > 1 && strings.HasPrefix(lowerPattern, "*") && strings.HasSuffix(lowerPattern, "*") {
		inner := lowerPattern[1 : len(lowerPattern)-1]
		return strings.Contains(lowerValue, inner)
	}

	// *.ext — suffix
	if strings.HasPrefix(lowerPattern, "*") {
		return strings.HasSuffix(lowerValue, lowerPattern[1:])
	}

	// prefix*
	if strings.HasSuffix(lowerPattern, "*") {
		return strings.HasPrefix(lowerValue, lowerPattern[:len(lowerPattern)-1])
	}

	return lowerValue == lowerPattern
}

// toolName extracts the tool identifier from a resource string.
// Resources may carry arguments ("http_request https://x") or a
// namespace ("tools/http_request"); classification uses the bare name.
func toolName(resource string) string {
	fields := strings.Fields(resource)
	if len(fields) == 0 {
		return ""
	}
	name := fields[0]
	if idx := strings.LastIndexByte(name, '/'); idx >= 0 && idx < len(name)-1 {
		name = name[idx+1:]
	}
	return strings.ToLower(name)
}
