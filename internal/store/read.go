package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/mechbank/internal/mechanism"
)

const recordColumns = `id, version_major, version_minor, retired, last_updated, document`

// ListFilter selects records for ListRecords.
type ListFilter struct {
	Category       mechanism.Category // Empty means all categories
	IncludeRetired bool
	Offset         int
	Limit          int // <= 0 means no limit
}

// ReadRecord retrieves a single record by id, retired or not.
// Returns a *mechanism.NotFoundError if the id is unknown.
func (s *Store) ReadRecord(ctx context.Context, id string) (mechanism.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM mechanisms
		WHERE id = ?
	`, id)

	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return mechanism.Record{}, &mechanism.NotFoundError{ID: id}
	}
	if err != nil {
		return mechanism.Record{}, fmt.Errorf("read record: %w", err)
	}
	return r, nil
}

// Exists reports whether an id has ever been assigned.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM mechanisms WHERE id = ?`, id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check exists: %w", err)
	}
	return count > 0, nil
}

// ListRecords returns one page of records in insertion order plus the total
// number of records matching the filter. Both come from a single read
// transaction so they describe the same snapshot.
func (s *Store) ListRecords(ctx context.Context, f ListFilter) ([]mechanism.Record, int, error) {
	var where []string
	var args []any
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, string(f.Category))
	}
	if !f.IncludeRetired {
		where = append(where, "retired = 0")
	}
	clause := ""
	if len(where) > 0 {
		clause = "WHERE " + strings.Join(where, " AND ")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("list records: begin tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM mechanisms `+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("list records: count: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	pageArgs := append(append([]any{}, args...), limit, offset)

	rows, err := tx.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM mechanisms
		`+clause+`
		ORDER BY rowid ASC
		LIMIT ? OFFSET ?
	`, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("list records: %w", err)
	}
	return records, total, nil
}

// AllRecords returns every record, retired included, in insertion order.
func (s *Store) AllRecords(ctx context.Context) ([]mechanism.Record, error) {
	records, _, err := s.ListRecords(ctx, ListFilter{IncludeRetired: true})
	return records, err
}

// ReadHistory returns the changelog of one record in ledger order.
// Returns an empty slice (not nil) if the record has no entries.
func (s *Store) ReadHistory(ctx context.Context, id string) ([]mechanism.ChangelogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, mechanism_id, from_version, to_version, bump_kind, timestamp, summary
		FROM changelog
		WHERE mechanism_id = ?
		ORDER BY seq ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ReadAllEntries returns the whole changelog in ledger order.
func (s *Store) ReadAllEntries(ctx context.Context) ([]mechanism.ChangelogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, mechanism_id, from_version, to_version, bump_kind, timestamp, summary
		FROM changelog
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("read all entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ReadQuarantine returns the stored consistency failure for id, or nil if
// the record is not quarantined.
func (s *Store) ReadQuarantine(ctx context.Context, id string) (*mechanism.ConsistencyError, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT mechanism_id, stored_version, replayed_version, reason
		FROM quarantine
		WHERE mechanism_id = ?
	`, id)
	ce, err := scanQuarantine(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read quarantine: %w", err)
	}
	return ce, nil
}

// ListQuarantine returns every quarantined record's finding ordered by id.
func (s *Store) ListQuarantine(ctx context.Context) ([]mechanism.ConsistencyError, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT mechanism_id, stored_version, replayed_version, reason
		FROM quarantine
		ORDER BY mechanism_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list quarantine: %w", err)
	}
	defer rows.Close()

	out := []mechanism.ConsistencyError{}
	for rows.Next() {
		ce, err := scanQuarantine(rows)
		if err != nil {
			return nil, fmt.Errorf("list quarantine: %w", err)
		}
		out = append(out, *ce)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quarantine: %w", err)
	}
	return out, nil
}

// GradeCount is the number of live records for one (category, grade) pair.
type GradeCount struct {
	Category mechanism.Category
	Grade    mechanism.Grade
	Count    int
}

// CountByCategoryAndGrade aggregates live (non-retired) records.
func (s *Store) CountByCategoryAndGrade(ctx context.Context) ([]GradeCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, quality_rating, COUNT(*)
		FROM mechanisms
		WHERE retired = 0
		GROUP BY category, quality_rating
		ORDER BY category ASC, quality_rating ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("count by category and grade: %w", err)
	}
	defer rows.Close()

	var out []GradeCount
	for rows.Next() {
		var gc GradeCount
		var category, grade string
		if err := rows.Scan(&category, &grade, &gc.Count); err != nil {
			return nil, fmt.Errorf("scan grade count: %w", err)
		}
		gc.Category = mechanism.Category(category)
		gc.Grade = mechanism.Grade(grade)
		out = append(out, gc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate grade counts: %w", err)
	}
	return out, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanRecord builds a record from its document and overlays the
// store-owned columns, which are authoritative.
func scanRecord(sc scanner) (mechanism.Record, error) {
	var (
		id           string
		major, minor int
		retired      int
		lastUpdated  string
		doc          string
	)
	if err := sc.Scan(&id, &major, &minor, &retired, &lastUpdated, &doc); err != nil {
		return mechanism.Record{}, err
	}

	r, err := unmarshalDocument(doc)
	if err != nil {
		return mechanism.Record{}, err
	}
	r.ID = id
	r.Version = mechanism.Version{Major: major, Minor: minor}
	r.Retired = retired != 0
	if r.LastUpdated, err = parseDate(lastUpdated); err != nil {
		return mechanism.Record{}, err
	}
	return r, nil
}

func scanRecords(rows *sql.Rows) ([]mechanism.Record, error) {
	records := []mechanism.Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

func scanEntries(rows *sql.Rows) ([]mechanism.ChangelogEntry, error) {
	entries := []mechanism.ChangelogEntry{}
	for rows.Next() {
		var (
			e              mechanism.ChangelogEntry
			from, to, kind string
			ts             string
		)
		if err := rows.Scan(&e.Seq, &e.MechanismID, &from, &to, &kind, &ts, &e.Summary); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		var err error
		if e.FromVersion, err = mechanism.ParseVersion(from); err != nil {
			return nil, fmt.Errorf("scan entry %d: %w", e.Seq, err)
		}
		if e.ToVersion, err = mechanism.ParseVersion(to); err != nil {
			return nil, fmt.Errorf("scan entry %d: %w", e.Seq, err)
		}
		if e.Timestamp, err = parseTimestamp(ts); err != nil {
			return nil, fmt.Errorf("scan entry %d: %w", e.Seq, err)
		}
		e.BumpKind = mechanism.BumpKind(kind)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

func scanQuarantine(sc scanner) (*mechanism.ConsistencyError, error) {
	var ce mechanism.ConsistencyError
	var stored, replayed string
	if err := sc.Scan(&ce.ID, &stored, &replayed, &ce.Reason); err != nil {
		return nil, err
	}
	var err error
	if ce.Stored, err = mechanism.ParseVersion(stored); err != nil {
		return nil, err
	}
	if ce.Replayed, err = mechanism.ParseVersion(replayed); err != nil {
		return nil, err
	}
	return &ce, nil
}
