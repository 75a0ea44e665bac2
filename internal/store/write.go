package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/mechbank/internal/mechanism"
)

// ErrDuplicateID is returned when a new record reuses an assigned id.
// Ids are permanent: retired ids are never reassigned.
var ErrDuplicateID = errors.New("mechanism id already assigned")

// Commit is one atomic record write plus its changelog entry.
type Commit struct {
	// Record is the full record to store, with Version and LastUpdated set.
	Record mechanism.Record

	// Previous is the version the record was derived from.
	// Nil means the record is new and must not exist yet.
	Previous *mechanism.Version

	// Entry is the changelog entry to append. Seq is assigned by the store.
	Entry mechanism.ChangelogEntry
}

// Commit writes the record and appends its changelog entry in a single
// transaction: either both happen or neither does.
//
// For new records (Previous == nil) an existing id yields ErrDuplicateID.
// For updates the stored version must still equal *Previous, otherwise a
// *mechanism.ConflictError is returned and nothing is written.
//
// Returns the appended entry with its ledger Seq.
func (s *Store) Commit(ctx context.Context, c Commit) (mechanism.ChangelogEntry, error) {
	if c.Entry.MechanismID != c.Record.ID {
		return mechanism.ChangelogEntry{}, fmt.Errorf("commit: entry for %q does not match record %q", c.Entry.MechanismID, c.Record.ID)
	}
	if c.Entry.ToVersion != c.Record.Version {
		return mechanism.ChangelogEntry{}, fmt.Errorf("commit: entry version %s does not match record version %s", c.Entry.ToVersion, c.Record.Version)
	}

	doc, err := marshalDocument(c.Record)
	if err != nil {
		return mechanism.ChangelogEntry{}, fmt.Errorf("commit: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mechanism.ChangelogEntry{}, fmt.Errorf("commit: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	r := c.Record
	if c.Previous == nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO mechanisms
			(id, name, category, quality_rating, version_major, version_minor, retired, last_updated, document)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			r.ID,
			r.Name,
			string(r.Category),
			string(r.Evidence.QualityRating),
			r.Version.Major,
			r.Version.Minor,
			boolToInt(r.Retired),
			formatDate(r.LastUpdated),
			doc,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return mechanism.ChangelogEntry{}, ErrDuplicateID
			}
			return mechanism.ChangelogEntry{}, fmt.Errorf("commit: insert record: %w", err)
		}
	} else {
		result, err := tx.ExecContext(ctx, `
			UPDATE mechanisms
			SET name = ?, category = ?, quality_rating = ?, version_major = ?, version_minor = ?,
			    last_updated = ?, document = ?
			WHERE id = ? AND version_major = ? AND version_minor = ? AND retired = 0
		`,
			r.Name,
			string(r.Category),
			string(r.Evidence.QualityRating),
			r.Version.Major,
			r.Version.Minor,
			formatDate(r.LastUpdated),
			doc,
			r.ID,
			c.Previous.Major,
			c.Previous.Minor,
		)
		if err != nil {
			return mechanism.ChangelogEntry{}, fmt.Errorf("commit: update record: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return mechanism.ChangelogEntry{}, fmt.Errorf("commit: rows affected: %w", err)
		}
		if n == 0 {
			return mechanism.ChangelogEntry{}, &mechanism.ConflictError{ID: r.ID, Expected: *c.Previous}
		}
	}

	entry := c.Entry
	result, err := tx.ExecContext(ctx, `
		INSERT INTO changelog
		(mechanism_id, from_version, to_version, bump_kind, timestamp, summary)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		entry.MechanismID,
		entry.FromVersion.String(),
		entry.ToVersion.String(),
		string(entry.BumpKind),
		formatTimestamp(entry.Timestamp),
		entry.Summary,
	)
	if err != nil {
		return mechanism.ChangelogEntry{}, fmt.Errorf("commit: append changelog: %w", err)
	}
	entry.Seq, err = result.LastInsertId()
	if err != nil {
		return mechanism.ChangelogEntry{}, fmt.Errorf("commit: last insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return mechanism.ChangelogEntry{}, fmt.Errorf("commit: %w", err)
	}

	entry.Timestamp = entry.Timestamp.UTC()
	return entry, nil
}

// SetRetired marks a record retired. Retiring is not a version change and
// appends no changelog entry. Returns changed=false if the record was already
// retired, and a *mechanism.NotFoundError for an unknown id.
func (s *Store) SetRetired(ctx context.Context, id string) (changed bool, err error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE mechanisms SET retired = 1 WHERE id = ? AND retired = 0
	`, id)
	if err != nil {
		return false, fmt.Errorf("retire: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("retire: rows affected: %w", err)
	}
	if n > 0 {
		return true, nil
	}

	exists, err := s.Exists(ctx, id)
	if err != nil {
		return false, fmt.Errorf("retire: %w", err)
	}
	if !exists {
		return false, &mechanism.NotFoundError{ID: id}
	}
	return false, nil
}

// WriteQuarantine records a consistency failure. Re-quarantining an id
// replaces the previous finding.
func (s *Store) WriteQuarantine(ctx context.Context, ce mechanism.ConsistencyError, detectedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quarantine (mechanism_id, stored_version, replayed_version, reason, detected_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(mechanism_id) DO UPDATE SET
			stored_version = excluded.stored_version,
			replayed_version = excluded.replayed_version,
			reason = excluded.reason,
			detected_at = excluded.detected_at
	`,
		ce.ID,
		ce.Stored.String(),
		ce.Replayed.String(),
		ce.Reason,
		formatTimestamp(detectedAt),
	)
	if err != nil {
		return fmt.Errorf("write quarantine: %w", err)
	}
	return nil
}

// ClearQuarantine lifts the quarantine on a record. Clearing an id that is
// not quarantined is a no-op.
func (s *Store) ClearQuarantine(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM quarantine WHERE mechanism_id = ?`, id); err != nil {
		return fmt.Errorf("clear quarantine: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a SQLite primary key or unique
// constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
