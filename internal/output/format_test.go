package output

import (
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/facility-scraper/internal/extraction"
)

var fixedTime = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

func successResult() extraction.Result {
	return extraction.Result{
		Success: true,
		PriorityFields: map[string]extraction.Value{
			"name":     extraction.StringValue("Fab Lab Berlin"),
			"capacity": extraction.IntValue(40),
		},
		ExtraMetadata: map[string]extraction.Value{
			"open":  extraction.BoolValue(true),
			"tools": extraction.ListValue([]string{"laser", "cnc"}),
			"fee":   extraction.FloatValue(4.5),
		},
		FieldStatus: extraction.FieldStatus{
			Extracted: []string{"capacity", "name", "fee", "open", "tools"},
			Failed:    []string{},
			NotFound:  []string{"email"},
		},
		Metadata: extraction.Metadata{
			Success:   true,
			Timestamp: fixedTime,
			SiteType:  "fablab",
			Duration:  1500 * time.Millisecond,
		},
	}
}

func failedResult() extraction.Result {
	return extraction.Result{
		PriorityFields: map[string]extraction.Value{},
		ExtraMetadata:  map[string]extraction.Value{},
		FieldStatus:    extraction.FieldStatus{NotFound: []string{"name"}},
		Metadata: extraction.Metadata{
			Timestamp:     fixedTime,
			FailureReason: extraction.FailureNoFieldsExtracted,
			SiteType:      "makerspace",
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatTOML, false},
		{"toml", FormatTOML, false},
		{"JSON", FormatJSON, false},
		{" yaml ", FormatYAML, false},
		{"yml", FormatYAML, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderTOMLSections(t *testing.T) {
	out, err := Render(successResult(), FormatTOML)
	require.NoError(t, err)

	meta := strings.Index(out, "[extraction_metadata]")
	prio := strings.Index(out, "[priority_fields]")
	extra := strings.Index(out, "[extra_metadata]")
	status := strings.Index(out, "[fields_status]")
	require.True(t, meta >= 0 && prio >= 0 && extra >= 0 && status >= 0, out)
	assert.True(t, meta < prio && prio < extra && extra < status, "sections out of order:\n%s", out)
	assert.NotContains(t, out, "failure_reason")

	var parsed map[string]any
	require.NoError(t, toml.Unmarshal([]byte(out), &parsed))

	md := parsed["extraction_metadata"].(map[string]any)
	assert.Equal(t, true, md["success"])
	assert.Equal(t, "2024-05-06T07:08:09Z", md["extraction_timestamp"])
	assert.InDelta(t, 1.5, md["extraction_duration_seconds"], 1e-9)
	assert.Equal(t, "fablab", md["site_type"])

	prioMap := parsed["priority_fields"].(map[string]any)
	assert.Equal(t, "Fab Lab Berlin", prioMap["name"])
	assert.Equal(t, int64(40), prioMap["capacity"])

	extraMap := parsed["extra_metadata"].(map[string]any)
	assert.Equal(t, true, extraMap["open"])
	assert.Equal(t, 4.5, extraMap["fee"])
	assert.Equal(t, []any{"laser", "cnc"}, extraMap["tools"])

	st := parsed["fields_status"].(map[string]any)
	assert.Empty(t, st["failed"])
	assert.Equal(t, []any{"email"}, st["not_found"])
}

func TestRenderTOMLQuotesStrings(t *testing.T) {
	r := successResult()
	r.PriorityFields["name"] = extraction.StringValue(`Acme "Fab" Lab`)
	r.PriorityFields["path"] = extraction.StringValue(`C:\lab`)
	r.ExtraMetadata["tools"] = extraction.ListValue([]string{`3" vise`, "cnc"})

	out, err := Render(r, FormatTOML)
	require.NoError(t, err)

	assert.Contains(t, out, `name = "Acme \"Fab\" Lab"`)
	assert.Contains(t, out, `path = "C:\\lab"`)
	assert.Contains(t, out, `tools = ["3\" vise", "cnc"]`)
	assert.Contains(t, out, `site_type = "fablab"`)
	assert.Contains(t, out, "capacity = 40")
	assert.Contains(t, out, "open = true")
	assert.NotContains(t, out, "'")
	assert.Contains(t, out, "[priority_fields]\ncapacity = 40\n")

	var parsed map[string]any
	require.NoError(t, toml.Unmarshal([]byte(out), &parsed))
	prio := parsed["priority_fields"].(map[string]any)
	assert.Equal(t, `Acme "Fab" Lab`, prio["name"])
	assert.Equal(t, `C:\lab`, prio["path"])
}

func TestRenderTOMLFailureOmitsEmptyTables(t *testing.T) {
	out, err := Render(failedResult(), FormatTOML)
	require.NoError(t, err)

	assert.NotContains(t, out, "[priority_fields]")
	assert.NotContains(t, out, "[extra_metadata]")
	assert.Contains(t, out, "[fields_status]")

	var parsed map[string]any
	require.NoError(t, toml.Unmarshal([]byte(out), &parsed))
	md := parsed["extraction_metadata"].(map[string]any)
	assert.Equal(t, false, md["success"])
	assert.Equal(t, "no_fields_extracted", md["failure_reason"])

	st := parsed["fields_status"].(map[string]any)
	assert.Contains(t, st, "extracted")
	assert.Contains(t, st, "failed")
	assert.Empty(t, st["extracted"])
	assert.Empty(t, st["failed"])
	assert.Equal(t, []any{"name"}, st["not_found"])
}

func TestRenderJSON(t *testing.T) {
	out, err := Render(successResult(), FormatJSON)
	require.NoError(t, err)

	assert.Less(t, strings.Index(out, `"extraction_metadata"`), strings.Index(out, `"fields_status"`))

	var doc Document
	require.NoError(t, sonic.UnmarshalString(out, &doc))
	assert.True(t, doc.Metadata.Success)
	assert.Equal(t, "Fab Lab Berlin", doc.Priority["name"])
	assert.Equal(t, []string{"email"}, doc.FieldsStatus.NotFound)
}

func TestRenderYAML(t *testing.T) {
	out, err := Render(failedResult(), FormatYAML)
	require.NoError(t, err)

	var doc Document
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "makerspace", doc.Metadata.SiteType)
	assert.Equal(t, "no_fields_extracted", doc.Metadata.FailureReason)
	assert.Empty(t, doc.Priority)
	assert.Equal(t, []string{"name"}, doc.FieldsStatus.NotFound)
}

func TestRenderUnknownFormat(t *testing.T) {
	_, err := Render(successResult(), Format("csv"))
	assert.Error(t, err)
}

func TestNewDocumentNilStatusSlices(t *testing.T) {
	doc := NewDocument(extraction.Result{})
	assert.NotNil(t, doc.FieldsStatus.Extracted)
	assert.NotNil(t, doc.FieldsStatus.Failed)
	assert.NotNil(t, doc.FieldsStatus.NotFound)
	assert.Nil(t, doc.Priority)
}
