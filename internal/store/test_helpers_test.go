package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/mechbank/internal/mechanism"
	"github.com/roach88/mechbank/internal/testutil"
)

// createTestStore creates a new file-backed store under t.TempDir().
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var testDay = time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)

// createTestRecord returns a valid record stamped as a fresh 1.0.
func createTestRecord(id string) mechanism.Record {
	r := testutil.SampleRecordWithID(id)
	r.Version = mechanism.Initial
	r.LastUpdated = testDay
	return r
}

// initialCommit builds the creation commit for r.
func initialCommit(r mechanism.Record) Commit {
	return Commit{
		Record: r,
		Entry: mechanism.ChangelogEntry{
			MechanismID: r.ID,
			FromVersion: mechanism.Zero,
			ToVersion:   r.Version,
			BumpKind:    mechanism.BumpInitial,
			Timestamp:   testutil.Epoch,
			Summary:     "initial version",
		},
	}
}

// bumpCommit builds an update commit from prev to r with the given bump.
func bumpCommit(prev mechanism.Version, r mechanism.Record, kind mechanism.BumpKind, ts time.Time) Commit {
	return Commit{
		Record:   r,
		Previous: &prev,
		Entry: mechanism.ChangelogEntry{
			MechanismID: r.ID,
			FromVersion: prev,
			ToVersion:   r.Version,
			BumpKind:    kind,
			Timestamp:   ts,
			Summary:     string(kind),
		},
	}
}

// mustCreate commits a new record and fails the test on error.
func mustCreate(t *testing.T, s *Store, id string) mechanism.Record {
	t.Helper()
	r := createTestRecord(id)
	if _, err := s.Commit(context.Background(), initialCommit(r)); err != nil {
		t.Fatalf("Commit(%s) failed: %v", id, err)
	}
	return r
}
