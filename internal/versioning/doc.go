// Package versioning derives the version bump for a mechanism edit.
//
// The version number tracks the statistical significance of a change, not
// the edit count. A MAJOR bump means the conclusion changed (direction of
// association flipped, or the point estimate moved by more than the major
// threshold). A MINOR bump means the same conclusion with refined evidence.
// An edit that changes nothing version-relevant is a NoOp and must not be
// committed.
package versioning
