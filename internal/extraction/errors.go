package extraction

import (
	"errors"
	"fmt"
)

// ErrNotFound reports that a rule ran cleanly but matched nothing usable
var ErrNotFound = errors.New("no match")

// ErrorKind classifies which query engine failed
type ErrorKind string

const (
	SelectorError ErrorKind = "selector-error"
	QueryError    ErrorKind = "query-error"
	PatternError  ErrorKind = "pattern-error"
)

// ExtractionError is a field-level failure of the underlying query engine.
// The engine records it as a failed field and keeps going.
type ExtractionError struct {
	Kind ErrorKind
	Rule string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s for rule %q: %v", e.Kind, e.Rule, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ParsingError reports that the HTML could not be turned into a document
type ParsingError struct {
	Err error
}

func (e *ParsingError) Error() string {
	return fmt.Sprintf("failed to parse HTML content: %v", e.Err)
}

func (e *ParsingError) Unwrap() error { return e.Err }

// IsParsingError reports whether err is or wraps a ParsingError
func IsParsingError(err error) bool {
	var pe *ParsingError
	return errors.As(err, &pe)
}
