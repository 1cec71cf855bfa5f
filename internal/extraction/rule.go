package extraction

import "strings"

// Kind identifies the matching strategy for a rule
type Kind int

const (
	KindUnknown Kind = iota
	KindSelector
	KindTreeQuery
	KindPattern
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindSelector:
		return "selector"
	case KindTreeQuery:
		return "tree_query"
	case KindPattern:
		return "pattern"
	default:
		return "unknown"
	}
}

// Classify determines a rule's kind from its literal syntax and returns the
// normalized pattern. First match wins:
//
//	""           -> unknown
//	"//..."      -> tree query
//	"/.../", "^" -> pattern
//	anything else -> selector
func Classify(rule string) (Kind, string) {
	trimmed := strings.TrimSpace(rule)
	switch {
	case trimmed == "":
		return KindUnknown, rule
	case strings.HasPrefix(trimmed, "//"):
		return KindTreeQuery, trimmed
	case isDelimitedPattern(trimmed), strings.HasPrefix(trimmed, "^"):
		return KindPattern, trimmed
	default:
		return KindSelector, trimmed
	}
}

func isDelimitedPattern(s string) bool {
	return len(s) >= 2 && strings.HasPrefix(s, "/") && strings.HasSuffix(s, "/")
}

// stripDelimiters removes enclosing slashes from a pattern rule
func stripDelimiters(pattern string) string {
	if strings.HasPrefix(pattern, "/") {
		return strings.Trim(pattern, "/")
	}
	return strings.TrimSpace(pattern)
}
