package output

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"

	"github.com/GriffinCanCode/facility-scraper/internal/extraction"
)

// Format names a serialization of an extraction result
type Format string

const (
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat resolves a format name; empty means TOML
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case "":
		return FormatTOML, nil
	case FormatTOML, FormatJSON, FormatYAML:
		return f, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported output format %q", name)
	}
}

// Ext is the file extension for the format
func (f Format) Ext() string {
	return string(f)
}

// Document is the serialized shape of a result. Field order fixes section
// order: metadata, priority fields, extra metadata, field status.
type Document struct {
	Metadata     MetadataDoc    `toml:"extraction_metadata" json:"extraction_metadata" yaml:"extraction_metadata"`
	Priority     map[string]any `toml:"priority_fields,omitempty" json:"priority_fields,omitempty" yaml:"priority_fields,omitempty"`
	Extra        map[string]any `toml:"extra_metadata,omitempty" json:"extra_metadata,omitempty" yaml:"extra_metadata,omitempty"`
	FieldsStatus StatusDoc      `toml:"fields_status" json:"fields_status" yaml:"fields_status"`
}

// MetadataDoc is the extraction_metadata section
type MetadataDoc struct {
	Success         bool    `toml:"success" json:"success" yaml:"success"`
	Timestamp       string  `toml:"extraction_timestamp" json:"extraction_timestamp" yaml:"extraction_timestamp"`
	DurationSeconds float64 `toml:"extraction_duration_seconds" json:"extraction_duration_seconds" yaml:"extraction_duration_seconds"`
	FailureReason   string  `toml:"failure_reason,omitempty" json:"failure_reason,omitempty" yaml:"failure_reason,omitempty"`
	SiteType        string  `toml:"site_type" json:"site_type" yaml:"site_type"`
}

// StatusDoc is the fields_status section; arrays are always written
type StatusDoc struct {
	Extracted []string `toml:"extracted" json:"extracted" yaml:"extracted"`
	Failed    []string `toml:"failed" json:"failed" yaml:"failed"`
	NotFound  []string `toml:"not_found" json:"not_found" yaml:"not_found"`
}

// NewDocument converts a result into its serialized shape
func NewDocument(r extraction.Result) Document {
	return Document{
		Metadata: MetadataDoc{
			Success:         r.Metadata.Success,
			Timestamp:       r.Metadata.Timestamp.UTC().Format(time.RFC3339),
			DurationSeconds: r.Metadata.Duration.Seconds(),
			FailureReason:   r.Metadata.FailureReason,
			SiteType:        r.Metadata.SiteType,
		},
		Priority: values(r.PriorityFields),
		Extra:    values(r.ExtraMetadata),
		FieldsStatus: StatusDoc{
			Extracted: nonNil(r.FieldStatus.Extracted),
			Failed:    nonNil(r.FieldStatus.Failed),
			NotFound:  nonNil(r.FieldStatus.NotFound),
		},
	}
}

// Render serializes a result in the given format
func Render(r extraction.Result, f Format) (string, error) {
	doc := NewDocument(r)

	var (
		data []byte
		err  error
	)
	switch f {
	case FormatTOML, "":
		data, err = encodeTOML(doc)
	case FormatJSON:
		data, err = sonic.ConfigStd.MarshalIndent(doc, "", "  ")
		if err == nil {
			data = append(data, '\n')
		}
	case FormatYAML:
		data, err = yaml.Marshal(doc)
	default:
		return "", fmt.Errorf("unsupported output format %q", f)
	}
	if err != nil {
		return "", fmt.Errorf("failed to format %s output: %w", f, err)
	}
	return string(data), nil
}

// encodeTOML writes every string as a basic string with escapes
func encodeTOML(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.Indent = ""
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// values returns nil for an empty table so the section is omitted
func values(m map[string]extraction.Value) map[string]any {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v.Interface()
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
