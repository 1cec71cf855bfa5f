package archive

import (
	"fmt"
	"slices"
	"strings"

	"github.com/GriffinCanCode/facility-scraper/internal/extraction"
)

// Severity ranks a detected change
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Change describes one difference between two runs
type Change struct {
	Type        string   `json:"type"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
}

// ValueChange is an extracted value that differs between runs
type ValueChange struct {
	Field  string `json:"field"`
	Before string `json:"before"`
	After  string `json:"after"`
}

// Comparison is the field-level diff of two runs
type Comparison struct {
	NewFields    []string      `json:"new_fields"`    // now extracted
	LostFields   []string      `json:"lost_fields"`   // no longer extracted
	NewlyFailed  []string      `json:"newly_failed"`  // now failing
	NewlyWorking []string      `json:"newly_working"` // no longer failing
	Unchanged    []string      `json:"unchanged"`     // extracted in both
	Added        []string      `json:"added"`         // value keys only in curr
	Removed      []string      `json:"removed"`       // value keys only in prev
	Changed      []ValueChange `json:"changed"`

	SuccessBefore, SuccessAfter     bool `json:"-"`
	ExtractedBefore, ExtractedAfter int  `json:"-"`
}

// Compare diffs the field statuses and value tables of two runs
func Compare(prev, curr Record) Comparison {
	prevOK := set(prev.FieldsWith(extraction.StatusExtracted))
	currOK := set(curr.FieldsWith(extraction.StatusExtracted))
	prevBad := set(prev.FieldsWith(extraction.StatusFailed))
	currBad := set(curr.FieldsWith(extraction.StatusFailed))

	c := Comparison{
		NewFields:       minus(currOK, prevOK),
		LostFields:      minus(prevOK, currOK),
		NewlyFailed:     minus(currBad, prevBad),
		NewlyWorking:    minus(prevBad, currBad),
		Unchanged:       intersect(prevOK, currOK),
		SuccessBefore:   prev.Success,
		SuccessAfter:    curr.Success,
		ExtractedBefore: prev.ExtractedCount,
		ExtractedAfter:  curr.ExtractedCount,
	}

	for k, after := range curr.Values {
		before, ok := prev.Values[k]
		switch {
		case !ok:
			c.Added = append(c.Added, k)
		case before != after:
			c.Changed = append(c.Changed, ValueChange{Field: k, Before: before, After: after})
		}
	}
	for k := range prev.Values {
		if _, ok := curr.Values[k]; !ok {
			c.Removed = append(c.Removed, k)
		}
	}
	slices.Sort(c.Added)
	slices.Sort(c.Removed)
	slices.SortFunc(c.Changed, func(a, b ValueChange) int { return strings.Compare(a.Field, b.Field) })
	return c
}

// DetectChanges summarizes the comparison of two runs as typed changes.
// Identical runs yield a single "no_changes" entry.
func DetectChanges(prev, curr Record) []Change {
	c := Compare(prev, curr)
	var changes []Change
	add := func(typ string, sev Severity, format string, args ...any) {
		changes = append(changes, Change{Type: typ, Severity: sev, Description: fmt.Sprintf(format, args...)})
	}

	if len(c.NewFields) > 0 {
		add("extraction_improved", SeverityInfo, "New fields extracted: %s", strings.Join(c.NewFields, ", "))
	}
	if len(c.LostFields) > 0 {
		add("extraction_regression", SeverityWarning, "Fields no longer extracted: %s", strings.Join(c.LostFields, ", "))
	}
	if len(c.NewlyFailed) > 0 {
		add("selector_failure", SeverityError, "Selectors now failing: %s", strings.Join(c.NewlyFailed, ", "))
	}
	if len(c.NewlyWorking) > 0 {
		add("selector_recovery", SeverityInfo, "Previously failing selectors now working: %s", strings.Join(c.NewlyWorking, ", "))
	}

	switch {
	case c.SuccessAfter && !c.SuccessBefore:
		add("success_recovered", SeverityInfo, "Scraping went from failed to successful")
	case !c.SuccessAfter && c.SuccessBefore:
		add("success_failure", SeverityError, "Scraping went from successful to failed")
	}

	switch delta := c.ExtractedAfter - c.ExtractedBefore; {
	case delta > 0:
		add("extraction_increase", SeverityInfo, "Extracted field count increased by %d", delta)
	case delta < 0:
		add("extraction_decrease", SeverityWarning, "Extracted field count decreased by %d", -delta)
	}

	if len(c.Changed) > 0 {
		names := make([]string, len(c.Changed))
		for i, vc := range c.Changed {
			names[i] = vc.Field
		}
		add("content_changed", SeverityInfo, "Values changed: %s", strings.Join(names, ", "))
	}

	if len(changes) == 0 {
		return []Change{{Type: "no_changes", Severity: SeverityInfo, Description: "No significant changes detected"}}
	}
	return changes
}

func set(items []string) map[string]struct{} {
	m := make(map[string]struct{}, len(items))
	for _, s := range items {
		m[s] = struct{}{}
	}
	return m
}

func minus(a, b map[string]struct{}) []string {
	out := []string{}
	for k := range a {
		if _, ok := b[k]; !ok {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}

func intersect(a, b map[string]struct{}) []string {
	out := []string{}
	for k := range a {
		if _, ok := b[k]; ok {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}
