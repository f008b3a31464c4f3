// Package versions converts loosely-structured image tag strings into ordered
// comparison keys. It accepts the common tag shapes seen in the wild: an
// optional short alphabetic prefix ("v1.2.3", "rel2.0"), missing minor or
// patch components ("7", "7.0"), a prerelease segment ("2.0.0-rc.1"), and
// ignored build metadata ("1.0+build5").
package versions

import (
	"regexp"
	"strconv"
	"strings"
)

// tagPattern matches a version at the start of a tag string: optional short
// alphabetic prefix, major, optional minor and patch, optional prerelease of
// dot-separated alphanumeric/hyphen tokens, optional ignored build metadata.
var tagPattern = regexp.MustCompile(
	`^[A-Za-z]{0,3}(\d+)(?:\.(\d+))?(?:\.(\d+))?(?:-([0-9A-Za-z-]+(?:\.[0-9A-Za-z-]+)*))?(?:\+[0-9A-Za-z.-]+)?`,
)

// releaseSentinel stands in for an absent prerelease. It is a run of
// high-ordinal characters so that a release sorts after any realistic
// prerelease identifier of the same major.minor.patch.
var releaseSentinel = strings.Repeat("~", 8)

// Key is an ordered comparison key for a version tag. Keys compare by
// standard tuple ordering over (Major, Minor, Patch, Prerelease).
type Key struct {
	Major      int
	Minor      int
	Patch      int
	Prerelease string
}

// Parse converts a tag into a comparison key.
//
// Missing minor and patch components default to 0, so "7.0" and "7.0.0" parse
// to equal keys. An absent prerelease is replaced by a lexically-maximal
// sentinel, making a release greater than any prerelease of the same version.
// The second return value is false when the tag does not start with a
// recognizable version or a numeric segment overflows.
func Parse(tag string) (Key, bool) {
	m := tagPattern.FindStringSubmatch(tag)
	if m == nil {
		return Key{}, false
	}

	nums := [3]int{}

	for i, group := range m[1:4] {
		if group == "" {
			continue // Missing minor/patch defaults to 0.
		}

		n, err := strconv.Atoi(group)
		if err != nil {
			return Key{}, false
		}

		nums[i] = n
	}

	prerelease := m[4]
	if prerelease == "" {
		prerelease = releaseSentinel
	}

	return Key{
		Major:      nums[0],
		Minor:      nums[1],
		Patch:      nums[2],
		Prerelease: prerelease,
	}, true
}

// Compare returns -1, 0 or 1 ordering k against other by tuple comparison.
func (k Key) Compare(other Key) int {
	pairs := [3][2]int{
		{k.Major, other.Major},
		{k.Minor, other.Minor},
		{k.Patch, other.Patch},
	}

	for _, pair := range pairs {
		switch {
		case pair[0] < pair[1]:
			return -1
		case pair[0] > pair[1]:
			return 1
		}
	}

	return strings.Compare(k.Prerelease, other.Prerelease)
}

// Less reports whether k orders strictly before other.
func (k Key) Less(other Key) bool {
	return k.Compare(other) < 0
}

// IsRelease reports whether the key carries no prerelease segment.
func (k Key) IsRelease() bool {
	return k.Prerelease == releaseSentinel
}
