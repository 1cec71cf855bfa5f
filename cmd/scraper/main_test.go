package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sitesTOML = `
[[sites]]
id = "acme"
url_pattern = "acme-fablab.org"
site_type = "fablab"

[sites.fields.priority]
name = "h1"
`

func writeFixtures(t *testing.T) (config, page string) {
	t.Helper()
	dir := t.TempDir()
	config = filepath.Join(dir, "config.toml")
	page = filepath.Join(dir, "page.html")
	require.NoError(t, os.WriteFile(config, []byte(sitesTOML), 0o644))
	require.NoError(t, os.WriteFile(page, []byte("<html><body><h1>Acme Fab Lab</h1></body></html>"), 0o644))
	return config, page
}

func TestRunExtractsLocalHTML(t *testing.T) {
	config, page := writeFixtures(t)
	var out bytes.Buffer

	err := run(context.Background(), flags{config: config, htmlFile: page, siteID: "acme", format: "json", logLevel: "error"}, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), `"name": "Acme Fab Lab"`)
}

func TestRunWritesOutputFile(t *testing.T) {
	config, page := writeFixtures(t)
	dest := filepath.Join(t.TempDir(), "result.toml")
	var out bytes.Buffer

	err := run(context.Background(), flags{config: config, htmlFile: page, siteID: "acme", out: dest, format: "toml", logLevel: "error"}, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Wrote ")

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Contains(t, string(data), `name = "Acme Fab Lab"`)
}

func TestRunRejectsBadFlags(t *testing.T) {
	config, page := writeFixtures(t)
	tests := []struct {
		name string
		f    flags
	}{
		{"neither source", flags{config: config, format: "toml", logLevel: "error"}},
		{"both sources", flags{config: config, url: "https://acme-fablab.org", htmlFile: page, format: "toml", logLevel: "error"}},
		{"missing site", flags{config: config, htmlFile: page, format: "toml", logLevel: "error"}},
		{"unknown site", flags{config: config, htmlFile: page, siteID: "nope", format: "toml", logLevel: "error"}},
		{"bad format", flags{config: config, htmlFile: page, siteID: "acme", format: "xml", logLevel: "error"}},
		{"bad url", flags{config: config, url: "ftp://acme-fablab.org", format: "toml", logLevel: "error"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, run(context.Background(), tt.f, &bytes.Buffer{}))
		})
	}
}
