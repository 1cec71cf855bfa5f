package extraction

import (
	"slices"
	"time"
)

// FailureNoFieldsExtracted is the failure reason when nothing matched
const FailureNoFieldsExtracted = "no_fields_extracted"

// SiteRules is the rule-set for one site: field name -> rule, split into
// priority and extra sections.
type SiteRules struct {
	SiteType string
	Priority map[string]string
	Extra    map[string]string
}

// Overlap returns the sorted names configured in both sections
func (r SiteRules) Overlap() []string {
	var names []string
	for _, name := range sortedKeys(r.Extra) {
		if _, dup := r.Priority[name]; dup {
			names = append(names, name)
		}
	}
	return names
}

// Status is the outcome of one field
type Status string

const (
	StatusExtracted Status = "extracted"
	StatusFailed    Status = "failed"
	StatusNotFound  Status = "not_found"
)

// FieldStatus partitions configured field names by outcome
type FieldStatus struct {
	Extracted []string
	Failed    []string
	NotFound  []string
}

func newFieldStatus() FieldStatus {
	return FieldStatus{Extracted: []string{}, Failed: []string{}, NotFound: []string{}}
}

func (s *FieldStatus) add(name string, status Status) {
	switch status {
	case StatusExtracted:
		s.Extracted = append(s.Extracted, name)
	case StatusFailed:
		s.Failed = append(s.Failed, name)
	default:
		s.NotFound = append(s.NotFound, name)
	}
}

// Total returns the number of recorded fields
func (s FieldStatus) Total() int {
	return len(s.Extracted) + len(s.Failed) + len(s.NotFound)
}

// Metadata describes one extraction call
type Metadata struct {
	Success       bool
	Timestamp     time.Time
	FailureReason string
	SiteType      string
	Duration      time.Duration
}

// Result is the outcome of one extraction call
type Result struct {
	Success        bool
	PriorityFields map[string]Value
	ExtraMetadata  map[string]Value
	FieldStatus    FieldStatus
	Metadata       Metadata
}

// WithDuration returns a copy of the result carrying the final timing
func (r Result) WithDuration(d time.Duration) Result {
	r.Metadata.Duration = d
	return r
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
