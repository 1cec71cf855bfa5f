// Package id generates time-sortable identifiers for archived scrape runs.
//
// IDs are ULIDs with a type prefix (run_01HQ...). The timestamp part is the
// run time, so lexical order matches chronological order.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// RunID identifies one archived scrape run
type RunID string

// RunPrefix marks run IDs in logs and storage
const RunPrefix = "run"

func (id RunID) String() string { return string(id) }

// Generator produces ULIDs that stay ordered within one millisecond
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the shared generator
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator(rand.Reader)
	})
	return defaultGenerator
}

// NewGenerator creates a generator over entropy; tests pass a fixed reader
func NewGenerator(entropy io.Reader) *Generator {
	return &Generator{entropy: ulid.Monotonic(entropy, 0)}
}

// At creates a ULID stamped with t
func (g *Generator) At(t time.Time) ulid.ULID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), g.entropy)
}

// NewRunID generates a run ID stamped with the run time
func NewRunID(at time.Time) RunID {
	return RunID(fmt.Sprintf("%s_%s", RunPrefix, Default().At(at)))
}

// Timestamp extracts the time from a prefixed or bare ULID
func Timestamp(s string) (time.Time, error) {
	if i := strings.LastIndexByte(s, '_'); i >= 0 {
		s = s[i+1:]
	}
	parsed, err := ulid.Parse(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}

// IsValid reports whether s is a run ID
func IsValid(s string) bool {
	rest, ok := strings.CutPrefix(s, RunPrefix+"_")
	if !ok {
		return false
	}
	_, err := ulid.Parse(rest)
	return err == nil
}
