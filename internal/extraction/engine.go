package extraction

import (
	"errors"
	"strings"
	"time"

	"github.com/GriffinCanCode/facility-scraper/internal/logging"
	"go.uber.org/zap"
)

// Engine extracts every configured field of a site from one HTML page
type Engine struct {
	extractor *Extractor
	logger    *logging.Logger
	now       func() time.Time
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithExtractor replaces the default extractor
func WithExtractor(x *Extractor) EngineOption {
	return func(e *Engine) { e.extractor = x }
}

// WithClock overrides the timestamp source
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an extraction engine. A nil logger discards output.
func NewEngine(logger *logging.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	e := &Engine{
		logger: logger.Named("extraction"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.extractor == nil {
		e.extractor = NewExtractor()
	}
	return e
}

// ExtractFields parses htmlStr once and applies every priority and extra
// rule. Field failures are recorded in the result; the only returned error
// is a *ParsingError. A name in both sections is evaluated once, as a
// priority field. Duration is left for the caller to fill in.
func (e *Engine) ExtractFields(htmlStr string, rules SiteRules) (Result, error) {
	doc, err := ParseDocument(htmlStr)
	if err != nil {
		e.logger.Error("HTML parsing error", zap.Error(err))
		return Result{}, err
	}

	result := Result{
		PriorityFields: make(map[string]Value, len(rules.Priority)),
		ExtraMetadata:  make(map[string]Value, len(rules.Extra)),
		FieldStatus:    newFieldStatus(),
		Metadata: Metadata{
			Timestamp: e.now().UTC(),
			SiteType:  rules.SiteType,
		},
	}

	extra := rules.Extra
	if dups := rules.Overlap(); len(dups) > 0 {
		e.logger.Warn("Fields configured in both sections; keeping priority rules",
			zap.Strings("fields", dups))
		extra = make(map[string]string, len(rules.Extra))
		for name, rule := range rules.Extra {
			if _, dup := rules.Priority[name]; !dup {
				extra[name] = rule
			}
		}
	}

	e.extractSection(doc, "priority", rules.Priority, result.PriorityFields, &result.FieldStatus)
	e.extractSection(doc, "extra", extra, result.ExtraMetadata, &result.FieldStatus)

	result.Success = len(result.FieldStatus.Extracted) > 0
	result.Metadata.Success = result.Success
	if !result.Success {
		result.Metadata.FailureReason = FailureNoFieldsExtracted
	}

	e.logger.Debug("Extraction finished",
		zap.String("site_type", rules.SiteType),
		zap.Bool("success", result.Success),
		zap.Int("extracted", len(result.FieldStatus.Extracted)),
		zap.Int("failed", len(result.FieldStatus.Failed)),
		zap.Int("not_found", len(result.FieldStatus.NotFound)),
	)
	return result, nil
}

// extractSection walks fields in name order so repeated runs produce the
// same status slices.
func (e *Engine) extractSection(doc *Document, section string, rules map[string]string, into map[string]Value, status *FieldStatus) {
	for _, name := range sortedKeys(rules) {
		value, st, err := e.extractOne(doc, rules[name])
		status.add(name, st)

		switch st {
		case StatusExtracted:
			into[name] = value
			e.logger.Debug("Extracted field",
				zap.String("section", section),
				zap.String("field", name),
				zap.Stringer("value", value),
			)
		case StatusFailed:
			e.logger.Warn("Error extracting field",
				zap.String("section", section),
				zap.String("field", name),
				zap.Error(err),
			)
		default:
			e.logger.Debug("Field not found in content",
				zap.String("section", section),
				zap.String("field", name),
			)
		}
	}
}

func (e *Engine) extractOne(doc *Document, rule string) (Value, Status, error) {
	text, err := e.extractor.Extract(doc, rule)
	switch {
	case errors.Is(err, ErrNotFound):
		return Value{}, StatusNotFound, nil
	case err != nil:
		return Value{}, StatusFailed, err
	case strings.TrimSpace(text) == "":
		return Value{}, StatusNotFound, nil
	}
	return Infer(text), StatusExtracted, nil
}
