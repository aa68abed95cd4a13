// Package version implements assembly version parsing and comparison.
//
// Assembly versions have the form MAJOR.MINOR[.BUILD[.REVISION]], each
// component a non-negative 16-bit number in metadata but accepted here up
// to the int32 range, matching System.Version.
//
// Components that are not written read as zero, so "3.1" and "3.1.0.0"
// compare equal and both render as "3.1.0.0".
package version

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Version is a four-part assembly version.
type Version struct {
	Major    int
	Minor    int
	Build    int
	Revision int
}

// Zero is the 0.0.0.0 version.
var Zero = Version{}

// New builds a version from its components.
func New(major, minor, build, revision int) Version {
	return Version{Major: major, Minor: minor, Build: build, Revision: revision}
}

// ParseError represents a version parsing error.
type ParseError struct {
	Version string
	Message string
}

func (e *ParseError) Error() string {
	return "bad version " + strconv.Quote(e.Version) + ": " + e.Message
}

// Parse parses a dotted version string with two to four components.
// Surrounding whitespace is ignored.
func Parse(s string) (Version, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Version{}, &ParseError{Version: s, Message: "empty"}
	}

	parts := strings.Split(trimmed, ".")
	if len(parts) < 2 || len(parts) > 4 {
		return Version{}, &ParseError{Version: s, Message: "expected 2 to 4 components"}
	}

	var nums [4]int
	for i, part := range parts {
		n, err := strconv.ParseInt(part, 10, 32)
		if err != nil || n < 0 {
			return Version{}, &ParseError{Version: s, Message: fmt.Sprintf("component %d is not a non-negative number", i+1)}
		}
		nums[i] = int(n)
	}
	return Version{Major: nums[0], Minor: nums[1], Build: nums[2], Revision: nums[3]}, nil
}

// MustParse is like Parse but panics on malformed input.
// It is intended for constants and tests.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// ParseOrZero parses s and returns Zero when it is malformed.
func ParseOrZero(s string) Version {
	v, err := Parse(s)
	if err != nil {
		return Zero
	}
	return v
}

// FromUint16 builds a version from the four 16-bit fields stored in
// Assembly and AssemblyRef metadata rows.
func FromUint16(major, minor, build, revision uint16) Version {
	return Version{Major: int(major), Minor: int(minor), Build: int(build), Revision: int(revision)}
}

// String renders all four components.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Build, v.Revision)
}

// IsZero reports whether v is 0.0.0.0.
func (v Version) IsZero() bool {
	return v == Zero
}

// IsRetargetableSentinel reports whether v is one of the placeholder
// versions (all zeros or 255.255.255.255) that reference "any version".
func (v Version) IsRetargetableSentinel() bool {
	return v.IsZero() || v == Version{Major: math.MaxUint16, Minor: math.MaxUint16, Build: math.MaxUint16, Revision: math.MaxUint16}
}

// Compare returns -1 if a < b, 0 if a == b, 1 if a > b.
// Components are compared in order major, minor, build, revision.
func Compare(a, b Version) int {
	if c := cmp.Compare(a.Major, b.Major); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Minor, b.Minor); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Build, b.Build); c != 0 {
		return c
	}
	return cmp.Compare(a.Revision, b.Revision)
}

// AtLeast reports whether v >= other.
func (v Version) AtLeast(other Version) bool {
	return Compare(v, other) >= 0
}

// Closest picks the candidate index whose version is the smallest one
// that is still >= requested; when no candidate qualifies it picks the
// highest. Among equal versions the earliest candidate wins.
// It returns -1 for an empty slice.
func Closest(candidates []Version, requested Version) int {
	if len(candidates) == 0 {
		return -1
	}

	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return Compare(candidates[a], candidates[b])
	})

	for _, idx := range order {
		if candidates[idx].AtLeast(requested) {
			return idx
		}
	}

	// Highest available; for ties prefer the earliest of the top versions.
	best := order[len(order)-1]
	for _, idx := range order {
		if Compare(candidates[idx], candidates[best]) == 0 {
			return idx
		}
	}
	return best
}
