// Package mechanism defines the record types of the Mechanism Bank.
//
// This package contains type definitions and the error taxonomy only. All
// other internal packages import mechanism; mechanism imports nothing
// internal.
//
// Key design constraints:
//   - Record.ID is permanent; ids are never reassigned, records are never deleted
//   - LastUpdated and Version are owned by the store, never by callers
//   - All JSON/YAML tags use snake_case
//   - ChangelogEntry values are append-only
package mechanism
