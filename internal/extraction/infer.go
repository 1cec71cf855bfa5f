package extraction

import (
	"strconv"
	"strings"
)

// inferStep attempts one conversion. ok=false hands the input to the next step.
type inferStep struct {
	name string
	try  func(s string) (Value, bool)
}

// inferSteps is the precedence order: boolean > numeric > list > string
var inferSteps = []inferStep{
	{name: "bool", try: inferBool},
	{name: "number", try: inferNumber},
	{name: "list", try: inferList},
	{name: "string", try: inferString},
}

// ListSeparators are tried in order; the first one present decides the split
var ListSeparators = []string{",", ";", "|"}

var (
	trueWords  = map[string]bool{"yes": true, "true": true, "1": true}
	falseWords = map[string]bool{"no": true, "false": true, "0": true}
)

// Infer converts raw matched text into a typed value. It never fails: input
// that no step recognizes comes back as the trimmed string.
func Infer(raw string) Value {
	if strings.TrimSpace(raw) == "" {
		return StringValue(raw)
	}
	for _, step := range inferSteps {
		if v, ok := step.try(raw); ok {
			return v
		}
	}
	return StringValue(strings.TrimSpace(raw))
}

func inferBool(s string) (Value, bool) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	if trueWords[normalized] {
		return BoolValue(true), true
	}
	if falseWords[normalized] {
		return BoolValue(false), true
	}
	return Value{}, false
}

// inferNumber picks int or float by the presence of a decimal point in the
// source text, not by the parsed value.
func inferNumber(s string) (Value, bool) {
	s, ok := stripDigitGroups(strings.TrimSpace(s))
	if !ok {
		return Value{}, false
	}
	if !strings.Contains(s, ".") {
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Value{}, false
		}
		return IntValue(i), true
	}
	// ParseFloat also accepts hex floats like 0x1.8p1; decimal only here
	if strings.ContainsAny(s, "xX") {
		return Value{}, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Value{}, false
	}
	return FloatValue(f), true
}

// stripDigitGroups removes underscores used as digit separators, as in
// "1_000". Each underscore must sit between two digits.
func stripDigitGroups(s string) (string, bool) {
	if !strings.Contains(s, "_") {
		return s, true
	}
	for i := 0; i < len(s); i++ {
		if s[i] != '_' {
			continue
		}
		if i == 0 || i == len(s)-1 || !isDigit(s[i-1]) || !isDigit(s[i+1]) {
			return "", false
		}
	}
	return strings.ReplaceAll(s, "_", ""), true
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func inferList(s string) (Value, bool) {
	s = strings.TrimSpace(s)
	for _, sep := range ListSeparators {
		if !strings.Contains(s, sep) {
			continue
		}
		pieces := splitNonEmpty(s, sep)
		switch len(pieces) {
		case 0:
			continue
		case 1:
			return StringValue(pieces[0]), true
		default:
			return ListValue(pieces), true
		}
	}
	return Value{}, false
}

func inferString(s string) (Value, bool) {
	return StringValue(strings.TrimSpace(s)), true
}

func splitNonEmpty(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
