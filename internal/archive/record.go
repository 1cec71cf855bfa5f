package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"
	"time"

	"github.com/GriffinCanCode/facility-scraper/internal/extraction"
)

// Record is one archived scrape run
type Record struct {
	ID             string
	URL            string
	RunAt          time.Time
	Success        bool
	Duration       time.Duration
	SiteType       string
	ExtractedCount int
	FailedCount    int
	NotFoundCount  int
	OutputFile     string

	// Fields maps every configured field to its outcome
	Fields map[string]extraction.Status
	// Values holds extracted values keyed "priority.<name>" or "extra.<name>"
	Values map[string]string

	Payload       string // formatted result, stored compressed
	PayloadFormat string
	ContentHash   string
}

// NewRecord builds an archive record from a finished extraction
func NewRecord(url string, r extraction.Result, payload, format, outputFile string) Record {
	fields := make(map[string]extraction.Status, r.FieldStatus.Total())
	for _, n := range r.FieldStatus.Extracted {
		fields[n] = extraction.StatusExtracted
	}
	for _, n := range r.FieldStatus.Failed {
		fields[n] = extraction.StatusFailed
	}
	for _, n := range r.FieldStatus.NotFound {
		fields[n] = extraction.StatusNotFound
	}

	vals := make(map[string]string, len(r.PriorityFields)+len(r.ExtraMetadata))
	for k, v := range r.PriorityFields {
		vals[valueKey("priority", k)] = v.String()
	}
	for k, v := range r.ExtraMetadata {
		vals[valueKey("extra", k)] = v.String()
	}

	return Record{
		URL:            url,
		RunAt:          r.Metadata.Timestamp,
		Success:        r.Success,
		Duration:       r.Metadata.Duration,
		SiteType:       r.Metadata.SiteType,
		ExtractedCount: len(r.FieldStatus.Extracted),
		FailedCount:    len(r.FieldStatus.Failed),
		NotFoundCount:  len(r.FieldStatus.NotFound),
		OutputFile:     outputFile,
		Fields:         fields,
		Values:         vals,
		Payload:        payload,
		PayloadFormat:  format,
		ContentHash:    ContentHash(vals),
	}
}

func valueKey(section, name string) string {
	return section + "." + name
}

// ContentHash fingerprints a value table independent of map order
func ContentHash(values map[string]string) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte(0)
		b.WriteString(values[k])
		b.WriteByte(0)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// FieldsWith returns the sorted names of fields with the given status
func (r Record) FieldsWith(status extraction.Status) []string {
	var names []string
	for n, s := range r.Fields {
		if s == status {
			names = append(names, n)
		}
	}
	slices.Sort(names)
	return names
}
