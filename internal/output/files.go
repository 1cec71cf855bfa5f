package output

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const domainPrefixLen = 10

// OrganizePath builds dir/YYYY-MM-DD/<domain>_<YYYYMMDD_HHMMSS>.<ext>, using
// at most the first ten characters of the domain with dots and dashes removed.
func OrganizePath(dir, domain string, ts time.Time, f Format) string {
	ts = ts.UTC()
	short := strings.TrimPrefix(strings.ToLower(domain), "www.")
	short = strings.NewReplacer(".", "", "-", "").Replace(short)
	if len(short) > domainPrefixLen {
		short = short[:domainPrefixLen]
	}
	if short == "" {
		short = "site"
	}
	name := fmt.Sprintf("%s_%s.%s", short, ts.Format("20060102_150405"), f.Ext())
	return filepath.Join(dir, ts.Format("2006-01-02"), name)
}

// WriteFile writes content to path, creating parent directories, and
// returns the absolute path written.
func WriteFile(content, path string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write output file: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path, nil
	}
	return abs, nil
}

// ErrEmptyFile is returned by VerifyFile for a zero-length file
var ErrEmptyFile = errors.New("file is empty")

// VerifyFile checks that path exists, is a regular file and is non-empty
func VerifyFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("file not found: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("path is not a file: %s", path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyFile, path)
	}
	return nil
}
