package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"github.com/GriffinCanCode/facility-scraper/internal/extraction"
	"github.com/GriffinCanCode/facility-scraper/internal/shared/id"
)

// ErrNotFound is returned when no archived run matches
var ErrNotFound = errors.New("archive: no matching result")

// timeLayout is fixed-width so TEXT ordering matches time ordering
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const schema = `
CREATE TABLE IF NOT EXISTS results (
	id              TEXT PRIMARY KEY,
	url             TEXT NOT NULL,
	run_at          TEXT NOT NULL,
	run_date        TEXT NOT NULL,
	success         INTEGER NOT NULL,
	duration_ms     INTEGER NOT NULL DEFAULT 0,
	site_type       TEXT,
	extracted_count INTEGER NOT NULL DEFAULT 0,
	failed_count    INTEGER NOT NULL DEFAULT 0,
	not_found_count INTEGER NOT NULL DEFAULT 0,
	result_file     TEXT,
	field_values    TEXT NOT NULL DEFAULT '{}',
	payload         BLOB,
	payload_format  TEXT,
	content_hash    TEXT
);
CREATE INDEX IF NOT EXISTS idx_results_url_run ON results(url, run_at);
CREATE INDEX IF NOT EXISTS idx_results_run_date ON results(run_date);
CREATE TABLE IF NOT EXISTS result_fields (
	result_id  TEXT NOT NULL REFERENCES results(id) ON DELETE CASCADE,
	field_name TEXT NOT NULL,
	status     TEXT NOT NULL,
	PRIMARY KEY (result_id, field_name)
);
`

// Store archives scrape runs in SQLite
type Store struct {
	db  *sql.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
	now func() time.Time
}

// Open connects to the SQLite database at dsn and creates the schema
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps :memory: shared
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping archive: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = enc.Close()
		_ = db.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}

	s := &Store{db: db, enc: enc, dec: dec, now: time.Now}
	if err := s.EnsureSchema(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the archive tables if they do not exist
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create archive schema: %w", err)
	}
	return nil
}

// Close releases the database and codecs
func (s *Store) Close() error {
	s.dec.Close()
	_ = s.enc.Close()
	return s.db.Close()
}

// Save stores rec and its field statuses in one transaction. A zero RunAt is
// set to now; an empty ID is assigned a run ID stamped with RunAt.
func (s *Store) Save(ctx context.Context, rec Record) (string, error) {
	if rec.RunAt.IsZero() {
		rec.RunAt = s.now()
	}
	if rec.ID == "" {
		rec.ID = id.NewRunID(rec.RunAt).String()
	}
	runAt := rec.RunAt.UTC()

	values, err := sonic.MarshalString(nonNilValues(rec.Values))
	if err != nil {
		return "", fmt.Errorf("encode field values: %w", err)
	}
	var payload []byte
	if rec.Payload != "" {
		payload = s.enc.EncodeAll([]byte(rec.Payload), nil)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin archive tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO results
		(id, url, run_at, run_date, success, duration_ms, site_type,
		 extracted_count, failed_count, not_found_count, result_file,
		 field_values, payload, payload_format, content_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.URL, runAt.Format(timeLayout), runAt.Format("2006-01-02"),
		boolInt(rec.Success), rec.Duration.Milliseconds(), rec.SiteType,
		rec.ExtractedCount, rec.FailedCount, rec.NotFoundCount, rec.OutputFile,
		values, payload, rec.PayloadFormat, rec.ContentHash,
	)
	if err != nil {
		return "", fmt.Errorf("insert result: %w", err)
	}

	for name, status := range rec.Fields {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO result_fields (result_id, field_name, status) VALUES (?, ?, ?)`,
			rec.ID, name, string(status),
		); err != nil {
			return "", fmt.Errorf("insert field status %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit archive tx: %w", err)
	}
	return rec.ID, nil
}

const selectResult = `
	SELECT id, url, run_at, success, duration_ms, site_type,
	       extracted_count, failed_count, not_found_count, result_file,
	       field_values, payload, payload_format, content_hash
	FROM results`

// Get loads one run by id
func (s *Store) Get(ctx context.Context, runID string) (*Record, error) {
	recs, err := s.query(ctx, selectResult+` WHERE id = ?`, runID)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return &recs[0], nil
}

// ListForURL returns the runs for url at or after since, newest first
func (s *Store) ListForURL(ctx context.Context, url string, since time.Time) ([]Record, error) {
	return s.query(ctx,
		selectResult+` WHERE url = ? AND run_at >= ? ORDER BY run_at DESC, rowid DESC`,
		url, since.UTC().Format(timeLayout),
	)
}

// ListByDate returns every run on a UTC calendar day
func (s *Store) ListByDate(ctx context.Context, day time.Time) ([]Record, error) {
	return s.query(ctx,
		selectResult+` WHERE run_date = ? ORDER BY url, run_at DESC`,
		day.UTC().Format("2006-01-02"),
	)
}

// Latest returns the most recent run for url
func (s *Store) Latest(ctx context.Context, url string) (*Record, error) {
	recs, err := s.query(ctx,
		selectResult+` WHERE url = ? ORDER BY run_at DESC, rowid DESC LIMIT 1`, url)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return &recs[0], nil
}

// SuccessRate is the percentage of successful runs for url since a time
func (s *Store) SuccessRate(ctx context.Context, url string, since time.Time) (float64, error) {
	var total, ok int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(success), 0) FROM results WHERE url = ? AND run_at >= ?`,
		url, since.UTC().Format(timeLayout),
	).Scan(&total, &ok)
	if err != nil {
		return 0, fmt.Errorf("success rate: %w", err)
	}
	if total == 0 {
		return 0, nil
	}
	return float64(ok) / float64(total) * 100, nil
}

// Prune deletes runs older than before and returns how many were removed
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	cutoff := before.UTC().Format(timeLayout)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM result_fields WHERE result_id IN (SELECT id FROM results WHERE run_at < ?)`, cutoff); err != nil {
		return 0, fmt.Errorf("prune field statuses: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM results WHERE run_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune results: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, tx.Commit()
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query archive: %w", err)
	}

	var recs []Record
	for rows.Next() {
		rec, err := s.scan(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	// Field statuses are loaded after the cursor closes: one connection
	for i := range recs {
		fields, err := s.fieldStatuses(ctx, recs[i].ID)
		if err != nil {
			return nil, err
		}
		recs[i].Fields = fields
	}
	return recs, nil
}

func (s *Store) scan(rows *sql.Rows) (Record, error) {
	var (
		rec                          Record
		runAt, values                string
		success                      int
		durationMS                   int64
		siteType, file, format, hash sql.NullString
		payload                      []byte
	)
	if err := rows.Scan(&rec.ID, &rec.URL, &runAt, &success, &durationMS, &siteType,
		&rec.ExtractedCount, &rec.FailedCount, &rec.NotFoundCount, &file,
		&values, &payload, &format, &hash); err != nil {
		return Record{}, fmt.Errorf("scan result: %w", err)
	}

	t, err := time.Parse(timeLayout, runAt)
	if err != nil {
		return Record{}, fmt.Errorf("parse run_at %q: %w", runAt, err)
	}
	rec.RunAt = t.UTC()
	rec.Success = success != 0
	rec.Duration = time.Duration(durationMS) * time.Millisecond
	rec.SiteType = siteType.String
	rec.OutputFile = file.String
	rec.PayloadFormat = format.String
	rec.ContentHash = hash.String

	if err := sonic.UnmarshalString(values, &rec.Values); err != nil {
		return Record{}, fmt.Errorf("decode field values: %w", err)
	}
	if len(payload) > 0 {
		raw, err := s.dec.DecodeAll(payload, nil)
		if err != nil {
			return Record{}, fmt.Errorf("decompress payload: %w", err)
		}
		rec.Payload = string(raw)
	}
	return rec, nil
}

func (s *Store) fieldStatuses(ctx context.Context, runID string) (map[string]extraction.Status, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT field_name, status FROM result_fields WHERE result_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("query field statuses: %w", err)
	}
	defer rows.Close()

	fields := map[string]extraction.Status{}
	for rows.Next() {
		var name, status string
		if err := rows.Scan(&name, &status); err != nil {
			return nil, err
		}
		fields[name] = extraction.Status(status)
	}
	return fields, rows.Err()
}

func nonNilValues(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
