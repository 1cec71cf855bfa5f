package site

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
[scraper]
primary_library = "goquery"
timeout_seconds = 20
max_retries = 2

[[sites]]
id = "acme"
url_pattern = "acme-fablab.org"
site_type = "fablab"
description = "Acme Fablab"
timeout_seconds = 5

[sites.fields.priority]
name = "h1.name"
location = "span.location"

[sites.fields.extra]
email = '/[a-z]+@acme\.org/'

[[sites]]
id = "maker"
url_pattern = "makers.example"
site_type = "makerspace"

[sites.fields.priority]
name = "//h1"
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.toml", sampleConfig)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "goquery", cfg.PrimaryLibrary)
	assert.Equal(t, 20, cfg.DefaultTimeoutSeconds)
	assert.Equal(t, 2, cfg.DefaultMaxRetries)
	require.Len(t, cfg.Sites, 2)

	acme := cfg.Sites[0]
	assert.Equal(t, "acme", acme.ID)
	assert.Equal(t, 5, acme.TimeoutSeconds)
	assert.Equal(t, 2, acme.MaxRetries)
	assert.Equal(t, "h1.name", acme.Priority["name"])
	assert.Equal(t, `/[a-z]+@acme\.org/`, acme.Extra["email"])

	maker := cfg.Sites[1]
	assert.Equal(t, 20, maker.TimeoutSeconds)
	assert.Empty(t, maker.Extra)
	assert.NotNil(t, maker.Extra)

	rules := acme.Rules()
	assert.Equal(t, "fablab", rules.SiteType)
	assert.Len(t, rules.Priority, 2)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
[[sites]]
id = "a"
url_pattern = "a.org"
site_type = "fablab"
`), "inline")
	require.NoError(t, err)
	assert.Equal(t, DefaultPrimaryLibrary, cfg.PrimaryLibrary)
	assert.Equal(t, DefaultTimeoutSeconds, cfg.Sites[0].TimeoutSeconds)
	assert.Equal(t, DefaultMaxRetries, cfg.Sites[0].MaxRetries)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		msg     string
	}{
		{"bad syntax", "[[sites]\nid=", "invalid TOML"},
		{"missing id", "[[sites]]\nurl_pattern = \"a\"\nsite_type = \"b\"", "must have 'id'"},
		{"blank site type", "[[sites]]\nid = \"a\"\nurl_pattern = \"a\"\nsite_type = \"  \"", "must have 'id'"},
		{"zero timeout", "[[sites]]\nid = \"a\"\nurl_pattern = \"a\"\nsite_type = \"b\"\ntimeout_seconds = 0", "timeout_seconds"},
		{"negative retries", "[scraper]\nmax_retries = -1", "max_retries"},
		{"empty library", "[scraper]\nprimary_library = \"\"", "primary_library"},
		{"duplicate id", "[[sites]]\nid = \"a\"\nurl_pattern = \"a\"\nsite_type = \"b\"\n[[sites]]\nid = \"a\"\nurl_pattern = \"c\"\nsite_type = \"b\"", "duplicate site id"},
		{"overlapping field", "[[sites]]\nid = \"a\"\nurl_pattern = \"a\"\nsite_type = \"b\"\n[sites.fields.priority]\nname = \"h1\"\n[sites.fields.extra]\nname = \"h2\"", "both a priority and an extra"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.content), "inline")
			require.Error(t, err)

			var ce *ConfigurationError
			require.ErrorAs(t, err, &ce)
			assert.Contains(t, ce.Error(), tt.msg)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	var ce *ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Error(), "not found")
}

func TestLoadGlob(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "sites/a/first.toml", `
[scraper]
timeout_seconds = 7

[[sites]]
id = "first"
url_pattern = "first.org"
site_type = "fablab"
`)
	writeFile(t, dir, "sites/b/second.toml", `
[scraper]
timeout_seconds = 99

[[sites]]
id = "second"
url_pattern = "second.org"
site_type = "makerspace"
`)
	writeFile(t, dir, "sites/readme.md", "not toml")

	cfg, err := LoadGlob(dir, "sites/**/*.toml")
	require.NoError(t, err)
	require.Len(t, cfg.Sites, 2)
	assert.Equal(t, "first", cfg.Sites[0].ID)
	assert.Equal(t, "second", cfg.Sites[1].ID)
	assert.Equal(t, 7, cfg.DefaultTimeoutSeconds)
	assert.Equal(t, 7, cfg.Sites[1].TimeoutSeconds)
}

func TestLoadGlobNoMatches(t *testing.T) {
	_, err := LoadGlob(t.TempDir(), "**/*.toml")
	var ce *ConfigurationError
	assert.ErrorAs(t, err, &ce)
}

func TestLookup(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig), "inline")
	require.NoError(t, err)

	s, err := cfg.Lookup("https://acme-fablab.org/about")
	require.NoError(t, err)
	assert.Equal(t, "acme", s.ID)

	// Cached result is the same site
	again, err := cfg.Lookup("https://acme-fablab.org/about")
	require.NoError(t, err)
	assert.Same(t, s, again)

	_, err = cfg.Lookup("https://unknown.example")
	var ce *ConfigurationError
	assert.ErrorAs(t, err, &ce)

	byID, err := cfg.Site("maker")
	require.NoError(t, err)
	assert.Equal(t, "makers.example", byID.URLPattern)

	_, err = cfg.Site("nope")
	assert.Error(t, err)
}

func TestLookupOnManualConfig(t *testing.T) {
	cfg := &Config{Sites: []*Site{{ID: "x", URLPattern: "x.org", SiteType: "fablab"}}}
	s, err := cfg.Lookup("https://x.org")
	require.NoError(t, err)
	assert.Equal(t, "x", s.ID)
}
