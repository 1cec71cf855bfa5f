package site

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/GriffinCanCode/facility-scraper/internal/extraction"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/pelletier/go-toml/v2"
)

// Defaults applied when the [scraper] section omits a value
const (
	DefaultPrimaryLibrary = "goquery"
	DefaultTimeoutSeconds = 30
	DefaultMaxRetries     = 3
)

// Site is the rule-set and fetch policy for one facility website
type Site struct {
	ID             string
	URLPattern     string
	SiteType       string
	Description    string
	Priority       map[string]string
	Extra          map[string]string
	TimeoutSeconds int
	MaxRetries     int
}

// Rules hands the site's extraction rules to the extraction engine
func (s *Site) Rules() extraction.SiteRules {
	return extraction.SiteRules{
		SiteType: s.SiteType,
		Priority: s.Priority,
		Extra:    s.Extra,
	}
}

// Timeout returns the per-request fetch timeout
func (s *Site) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// Config is the validated scraper configuration
type Config struct {
	PrimaryLibrary        string
	DefaultTimeoutSeconds int
	DefaultMaxRetries     int
	Sites                 []*Site

	mu    sync.RWMutex
	cache map[string]*Site
}

// On-disk layout
type fileConfig struct {
	Scraper scraperSection `toml:"scraper"`
	Sites   []siteSection  `toml:"sites"`
}

type scraperSection struct {
	PrimaryLibrary *string `toml:"primary_library"`
	TimeoutSeconds *int    `toml:"timeout_seconds"`
	MaxRetries     *int    `toml:"max_retries"`
}

func (s scraperSection) isSet() bool {
	return s.PrimaryLibrary != nil || s.TimeoutSeconds != nil || s.MaxRetries != nil
}

type siteSection struct {
	ID             string `toml:"id"`
	URLPattern     string `toml:"url_pattern"`
	SiteType       string `toml:"site_type"`
	Description    string `toml:"description"`
	TimeoutSeconds *int   `toml:"timeout_seconds"`
	MaxRetries     *int   `toml:"max_retries"`
	Fields         struct {
		Priority map[string]string `toml:"priority"`
		Extra    map[string]string `toml:"extra"`
	} `toml:"fields"`
}

// Load reads and validates a TOML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, configErr(path, "configuration file not found")
		}
		return nil, &ConfigurationError{Path: path, Msg: "failed to read configuration file", Err: err}
	}
	return Parse(data, path)
}

// Parse validates TOML configuration content. source names the content in errors.
func Parse(data []byte, source string) (*Config, error) {
	fc, err := decode(data, source)
	if err != nil {
		return nil, err
	}
	return build([]fileConfig{fc}, []string{source})
}

// LoadGlob merges every file under root matching a doublestar pattern such
// as "sites/**/*.toml". Files are read in lexical order and the [scraper]
// section comes from the first file that sets one.
func LoadGlob(root, pattern string) (*Config, error) {
	fsys := os.DirFS(root)
	matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, &ConfigurationError{Path: pattern, Msg: "invalid glob pattern", Err: err}
	}
	if len(matches) == 0 {
		return nil, configErr(pattern, "no configuration files matched under %s", root)
	}
	slices.Sort(matches)

	files := make([]fileConfig, 0, len(matches))
	for _, name := range matches {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, &ConfigurationError{Path: name, Msg: "failed to read configuration file", Err: err}
		}
		fc, err := decode(data, name)
		if err != nil {
			return nil, err
		}
		files = append(files, fc)
	}
	return build(files, matches)
}

func decode(data []byte, source string) (fileConfig, error) {
	var fc fileConfig
	if err := toml.NewDecoder(bytes.NewReader(data)).Decode(&fc); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return fc, configErr(source, "invalid TOML syntax at line %d column %d: %s", row, col, derr.Error())
		}
		return fc, &ConfigurationError{Path: source, Msg: "invalid TOML configuration", Err: err}
	}
	return fc, nil
}

func build(files []fileConfig, sources []string) (*Config, error) {
	cfg := &Config{
		PrimaryLibrary:        DefaultPrimaryLibrary,
		DefaultTimeoutSeconds: DefaultTimeoutSeconds,
		DefaultMaxRetries:     DefaultMaxRetries,
		cache:                 make(map[string]*Site),
	}

	for i, fc := range files {
		if fc.Scraper.isSet() {
			if err := applyScraper(cfg, fc.Scraper, sources[i]); err != nil {
				return nil, err
			}
			break
		}
	}

	seen := make(map[string]string)
	for i, fc := range files {
		for _, sec := range fc.Sites {
			s, err := buildSite(cfg, sec, sources[i])
			if err != nil {
				return nil, err
			}
			if prev, dup := seen[s.ID]; dup {
				return nil, configErr(sources[i], "duplicate site id %q (first defined in %s)", s.ID, prev)
			}
			seen[s.ID] = sources[i]
			cfg.Sites = append(cfg.Sites, s)
		}
	}
	return cfg, nil
}

func applyScraper(cfg *Config, sec scraperSection, source string) error {
	if sec.PrimaryLibrary != nil {
		if strings.TrimSpace(*sec.PrimaryLibrary) == "" {
			return configErr(source, "primary_library cannot be empty")
		}
		cfg.PrimaryLibrary = *sec.PrimaryLibrary
	}
	if sec.TimeoutSeconds != nil {
		if *sec.TimeoutSeconds < 1 {
			return configErr(source, "timeout_seconds must be at least 1")
		}
		cfg.DefaultTimeoutSeconds = *sec.TimeoutSeconds
	}
	if sec.MaxRetries != nil {
		if *sec.MaxRetries < 0 {
			return configErr(source, "max_retries cannot be negative")
		}
		cfg.DefaultMaxRetries = *sec.MaxRetries
	}
	return nil
}

func buildSite(cfg *Config, sec siteSection, source string) (*Site, error) {
	if strings.TrimSpace(sec.ID) == "" || strings.TrimSpace(sec.URLPattern) == "" || strings.TrimSpace(sec.SiteType) == "" {
		return nil, configErr(source, "each site must have 'id', 'url_pattern', and 'site_type' fields")
	}

	s := &Site{
		ID:             sec.ID,
		URLPattern:     sec.URLPattern,
		SiteType:       sec.SiteType,
		Description:    sec.Description,
		Priority:       sec.Fields.Priority,
		Extra:          sec.Fields.Extra,
		TimeoutSeconds: cfg.DefaultTimeoutSeconds,
		MaxRetries:     cfg.DefaultMaxRetries,
	}
	if s.Priority == nil {
		s.Priority = map[string]string{}
	}
	if s.Extra == nil {
		s.Extra = map[string]string{}
	}
	if sec.TimeoutSeconds != nil {
		s.TimeoutSeconds = *sec.TimeoutSeconds
	}
	if sec.MaxRetries != nil {
		s.MaxRetries = *sec.MaxRetries
	}

	if s.TimeoutSeconds < 1 {
		return nil, configErr(source, "site %s: timeout_seconds must be at least 1", s.ID)
	}
	if s.MaxRetries < 0 {
		return nil, configErr(source, "site %s: max_retries cannot be negative", s.ID)
	}
	if dups := s.Rules().Overlap(); len(dups) > 0 {
		return nil, configErr(source, "site %s: field %q is both a priority and an extra field", s.ID, dups[0])
	}
	return s, nil
}

// Lookup returns the first site whose url_pattern is a substring of url
func (c *Config) Lookup(url string) (*Site, error) {
	c.mu.RLock()
	s, ok := c.cache[url]
	c.mu.RUnlock()
	if ok {
		return s, nil
	}

	for _, s := range c.Sites {
		if strings.Contains(url, s.URLPattern) {
			c.mu.Lock()
			if c.cache == nil {
				c.cache = make(map[string]*Site)
			}
			c.cache[url] = s
			c.mu.Unlock()
			return s, nil
		}
	}
	return nil, configErr("", "no site configuration found for URL: %s", url)
}

// Site returns the site with the given id
func (c *Config) Site(id string) (*Site, error) {
	for _, s := range c.Sites {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, configErr("", "unknown site id %q", id)
}
