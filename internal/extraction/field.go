package extraction

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/dlclark/regexp2"
)

// DefaultJoinSeparator joins the texts of a selector that matches several nodes
const DefaultJoinSeparator = ", "

// Extractor applies a single rule to a parsed document
type Extractor struct {
	tree          TreeQuerier
	joinSeparator string
	patternCache  sync.Map
}

// ExtractorOption configures an Extractor
type ExtractorOption func(*Extractor)

// WithTreeQuerier sets the tree-query capability. Passing nil disables it.
func WithTreeQuerier(q TreeQuerier) ExtractorOption {
	return func(x *Extractor) { x.tree = q }
}

// WithJoinSeparator overrides the many-match join separator
func WithJoinSeparator(sep string) ExtractorOption {
	return func(x *Extractor) { x.joinSeparator = sep }
}

// NewExtractor creates an extractor with XPath tree queries enabled
func NewExtractor(opts ...ExtractorOption) *Extractor {
	x := &Extractor{
		tree:          XPathQuerier{},
		joinSeparator: DefaultJoinSeparator,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Extract applies rule to doc. It returns ErrNotFound when the rule ran but
// matched nothing and *ExtractionError when the query engine itself failed.
// Pattern and tree-query matches are returned untrimmed and may be blank.
func (x *Extractor) Extract(doc *Document, rule string) (string, error) {
	kind, pattern := Classify(rule)
	switch kind {
	case KindSelector:
		return guard(SelectorError, pattern, func() (string, error) {
			return x.extractSelector(doc, pattern)
		})
	case KindTreeQuery:
		if x.tree == nil {
			return "", ErrNotFound
		}
		return guard(QueryError, pattern, func() (string, error) {
			return x.extractTreeQuery(doc, pattern)
		})
	case KindPattern:
		return guard(PatternError, pattern, func() (string, error) {
			return x.extractPattern(doc, pattern)
		})
	default:
		return "", ErrNotFound
	}
}

// guard converts engine errors and panics into ExtractionError
func guard(kind ErrorKind, rule string, fn func() (string, error)) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", &ExtractionError{Kind: kind, Rule: rule, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	text, err = fn()
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", &ExtractionError{Kind: kind, Rule: rule, Err: err}
	}
	return text, err
}

func (x *Extractor) extractSelector(doc *Document, selector string) (string, error) {
	// goquery's Find swallows compile errors, so compile with cascadia first
	matcher, err := cascadia.Compile(selector)
	if err != nil {
		return "", err
	}

	var texts []string
	doc.Selection().FindMatcher(matcher).Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			texts = append(texts, text)
		}
	})

	switch len(texts) {
	case 0:
		return "", ErrNotFound
	case 1:
		return texts[0], nil
	default:
		return strings.Join(texts, x.joinSeparator), nil
	}
}

func (x *Extractor) extractTreeQuery(doc *Document, expr string) (string, error) {
	root := doc.Root()
	if root == nil {
		return "", ErrNotFound
	}
	text, found, err := x.tree.QueryText(root, expr)
	if err != nil {
		return "", err
	}
	if !found {
		return "", ErrNotFound
	}
	return text, nil
}

func (x *Extractor) extractPattern(doc *Document, pattern string) (string, error) {
	re, err := x.compilePattern(stripDelimiters(pattern))
	if err != nil {
		return "", err
	}

	text, err := doc.Serialized()
	if err != nil {
		return "", err
	}

	match, err := re.FindStringMatch(text)
	if err != nil {
		return "", err
	}
	if match == nil {
		return "", ErrNotFound
	}
	// Whole match only; capture groups are ignored
	return match.String(), nil
}

// compilePattern returns a cached case-insensitive pattern
func (x *Extractor) compilePattern(pattern string) (*regexp2.Regexp, error) {
	if cached, ok := x.patternCache.Load(pattern); ok {
		return cached.(*regexp2.Regexp), nil
	}

	re, err := regexp2.Compile(pattern, regexp2.IgnoreCase)
	if err != nil {
		return nil, err
	}

	x.patternCache.Store(pattern, re)
	return re, nil
}
