// Package tags filters and orders remote registry tags to find the highest
// candidate for a unit. Exclude patterns are checked before include patterns,
// include matches are anchored at the start of the tag, and capture groups of
// the include pattern form the sort key. Sorting is total by construction:
// every comparison is either numeric or lexical, never both.
package tags

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/updrift/updrift/pkg/types"
	"github.com/updrift/updrift/pkg/versions"
)

// ErrMixedKey indicates two tags produced sort keys whose components disagree
// on numeric vs string type at the same position. The caller reports no
// winning tag for the unit instead of crashing the run.
var ErrMixedKey = errors.New("mixed numeric and string components in sort key")

// Component is one element of a tag's sort key, either an integer or a string.
type Component struct {
	Str     string
	Num     int
	Numeric bool
}

// ParsedTag is one remote tag with its derived sort key. Instances live for a
// single inspection pass and are immutable once built.
type ParsedTag struct {
	// Raw is the tag string as listed by the registry.
	Raw string

	// Key is the ordered sort key derived from the include pattern's capture
	// groups, or the raw tag itself when the pattern has no groups.
	Key []Component

	// MatchIndex holds the include pattern's submatch index pairs over Raw,
	// nil when no include pattern was configured. It is kept for link
	// template expansion.
	MatchIndex []int
}

// Sort filters the raw tags through the config's exclude and include patterns
// and returns the survivors ordered from highest to lowest.
//
// Ties between equal sort keys are broken by raw string length, longer first,
// so "1.2.0" outranks its alias "1.2". The error is non-nil only when the
// surviving keys are not mutually comparable; no partial order is returned in
// that case.
func Sort(raw []string, cfg types.FilterConfig) ([]ParsedTag, error) {
	parsed := make([]ParsedTag, 0, len(raw))

	for _, tag := range raw {
		// Exclusion wins over inclusion, checked first.
		if cfg.Exclude != nil && cfg.Exclude.MatchString(tag) {
			continue
		}

		pt, ok := parseTag(tag, cfg)
		if !ok {
			continue
		}

		parsed = append(parsed, pt)
	}

	var sortErr error

	sort.SliceStable(parsed, func(i, j int) bool {
		cmp, err := compareKeys(parsed[i].Key, parsed[j].Key)
		if err != nil {
			if sortErr == nil {
				sortErr = fmt.Errorf("%q vs %q: %w", parsed[i].Raw, parsed[j].Raw, err)
			}

			return false
		}

		if cmp != 0 {
			return cmp > 0 // Descending.
		}

		return len(parsed[i].Raw) > len(parsed[j].Raw)
	})

	if sortErr != nil {
		logrus.WithError(sortErr).Debug("Tag sort keys are not comparable")

		return nil, sortErr
	}

	return parsed, nil
}

// Biggest returns the highest tag of a sorted sequence, or false when the
// filtered list is empty.
func Biggest(sorted []ParsedTag) (ParsedTag, bool) {
	if len(sorted) == 0 {
		return ParsedTag{}, false
	}

	return sorted[0], true
}

// parseTag applies the include pattern and derives the sort key for one tag.
// Without an include pattern the tag is parsed as a version and dropped when
// it does not parse; with one, the tag must match the pattern at the start of
// the string and the capture groups form the key.
func parseTag(tag string, cfg types.FilterConfig) (ParsedTag, bool) {
	if cfg.Include == nil {
		key, ok := versions.Parse(tag)
		if !ok {
			return ParsedTag{}, false
		}

		return ParsedTag{Raw: tag, Key: versionKey(key)}, true
	}

	idx := cfg.Include.FindStringSubmatchIndex(tag)
	if idx == nil || idx[0] != 0 {
		return ParsedTag{}, false
	}

	return ParsedTag{
		Raw:        tag,
		Key:        buildKey(tag, idx, cfg),
		MatchIndex: idx,
	}, true
}

// versionKey converts a parsed version into sort key components. The
// prerelease component carries the parser's lexically-maximal sentinel for
// releases, so releases outrank prereleases of the same version.
func versionKey(key versions.Key) []Component {
	return []Component{
		{Num: key.Major, Numeric: true},
		{Num: key.Minor, Numeric: true},
		{Num: key.Patch, Numeric: true},
		{Str: key.Prerelease},
	}
}

// buildKey derives the sort key from the include pattern's captures: named
// groups ordered alphabetically by name when any exist, positional groups in
// order otherwise, and the raw tag itself when the pattern has no groups.
func buildKey(tag string, idx []int, cfg types.FilterConfig) []Component {
	names := cfg.Include.SubexpNames()

	var named []string

	for _, name := range names {
		if name != "" {
			named = append(named, name)
		}
	}

	if len(named) > 0 {
		sort.Strings(named)

		key := make([]Component, 0, len(named))
		for _, name := range named {
			key = append(key, makeComponent(captureByName(tag, idx, names, name), cfg.Numeric))
		}

		return key
	}

	if cfg.Include.NumSubexp() > 0 {
		key := make([]Component, 0, cfg.Include.NumSubexp())
		for group := 1; group <= cfg.Include.NumSubexp(); group++ {
			key = append(key, makeComponent(capture(tag, idx, group), cfg.Numeric))
		}

		return key
	}

	return []Component{makeComponent(tag, cfg.Numeric)}
}

// capture extracts the numbered capture group from the submatch index slice,
// empty when the group did not participate in the match.
func capture(tag string, idx []int, group int) string {
	start, end := idx[2*group], idx[2*group+1]
	if start < 0 {
		return ""
	}

	return tag[start:end]
}

// captureByName extracts the named capture group's value.
func captureByName(tag string, idx []int, names []string, name string) string {
	for group, candidate := range names {
		if candidate == name {
			return capture(tag, idx, group)
		}
	}

	return ""
}

// makeComponent wraps a captured value, converting all-digit values to
// integers when numeric parsing is enabled so "10" orders above "9".
func makeComponent(value string, numeric bool) Component {
	if numeric && allDigits(value) {
		if n, err := strconv.Atoi(value); err == nil {
			return Component{Num: n, Numeric: true}
		}
	}

	return Component{Str: value}
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}

	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}

	return true
}

// compareKeys orders two sort keys element-wise. Components at the same
// position must agree on numeric vs string type; a shorter key that is a
// prefix of a longer one orders below it.
func compareKeys(a, b []Component) (int, error) {
	n := min(len(a), len(b))

	for i := range n {
		cmp, err := compareComponents(a[i], b[i])
		if err != nil {
			return 0, err
		}

		if cmp != 0 {
			return cmp, nil
		}
	}

	switch {
	case len(a) < len(b):
		return -1, nil
	case len(a) > len(b):
		return 1, nil
	default:
		return 0, nil
	}
}

func compareComponents(a, b Component) (int, error) {
	if a.Numeric != b.Numeric {
		return 0, ErrMixedKey
	}

	if a.Numeric {
		switch {
		case a.Num < b.Num:
			return -1, nil
		case a.Num > b.Num:
			return 1, nil
		default:
			return 0, nil
		}
	}

	switch {
	case a.Str < b.Str:
		return -1, nil
	case a.Str > b.Str:
		return 1, nil
	default:
		return 0, nil
	}
}
