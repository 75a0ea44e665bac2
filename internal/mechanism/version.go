package mechanism

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a MAJOR.MINOR pair. A MAJOR bump means the conclusion changed;
// a MINOR bump means the same conclusion with refined evidence.
type Version struct {
	Major int
	Minor int
}

// Initial is the version every record is created at.
var Initial = Version{Major: 1, Minor: 0}

// Zero is the from-version of a creation entry.
var Zero = Version{}

// String renders the version as "MAJOR.MINOR".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// NextMajor returns the version after a MAJOR bump.
func (v Version) NextMajor() Version { return Version{Major: v.Major + 1} }

// NextMinor returns the version after a MINOR bump.
func (v Version) NextMinor() Version { return Version{Major: v.Major, Minor: v.Minor + 1} }

// Compare returns -1, 0 or 1 as v is less than, equal to or greater than o.
func (v Version) Compare(o Version) int {
	switch {
	case v.Major != o.Major:
		if v.Major < o.Major {
			return -1
		}
		return 1
	case v.Minor != o.Minor:
		if v.Minor < o.Minor {
			return -1
		}
		return 1
	}
	return 0
}

// IsZero reports whether v is 0.0.
func (v Version) IsZero() bool { return v == Zero }

// ParseVersion parses "MAJOR.MINOR".
func ParseVersion(s string) (Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 2 {
		return Version{}, fmt.Errorf("invalid version format: %q", s)
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil || major < 0 {
		return Version{}, fmt.Errorf("invalid major version: %q", parts[0])
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil || minor < 0 {
		return Version{}, fmt.Errorf("invalid minor version: %q", parts[1])
	}
	return Version{Major: major, Minor: minor}, nil
}

// MarshalText implements encoding.TextMarshaler so versions serialize as "1.2".
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Version) UnmarshalText(data []byte) error {
	parsed, err := ParseVersion(string(data))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
