// Package links expands link templates against the capture groups of a
// winning tag match. Templates reference groups the way regexp replacement
// strings do: "$1" or "${2}" for numbered groups, "${name}" or "$name" for
// named ones, "$$" for a literal dollar sign.
package links

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrUnknownGroup indicates a template referenced a capture group the include
// pattern does not define. The unit's link becomes absent; the rest of the
// pipeline continues.
var ErrUnknownGroup = errors.New("link template references unknown capture group")

// placeholderPattern matches one group reference inside a template.
var placeholderPattern = regexp.MustCompile(`\$(\$|\d+|[A-Za-z_]\w*|\{\w+\})`)

// Render expands the template against the include pattern's match over the
// winning tag. The match index slice is the one produced by
// FindStringSubmatchIndex on the tag.
func Render(template string, include *regexp.Regexp, tag string, matchIndex []int) (string, error) {
	var expandErr error

	names := include.SubexpNames()

	expanded := placeholderPattern.ReplaceAllStringFunc(template, func(placeholder string) string {
		ref := placeholder[1:]
		if ref == "$" {
			return "$"
		}

		ref = strings.TrimSuffix(strings.TrimPrefix(ref, "{"), "}")

		value, ok := lookupGroup(ref, names, tag, matchIndex)
		if !ok && expandErr == nil {
			expandErr = fmt.Errorf("%w: %q", ErrUnknownGroup, placeholder)
		}

		return value
	})

	if expandErr != nil {
		return "", expandErr
	}

	return expanded, nil
}

// RenderCurrent substitutes the currently running tag for every group
// reference in the template. It backs the secondary "link for pull" so a
// stable link to the running version exists even when no newer tag does.
func RenderCurrent(template string, currentTag string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(placeholder string) string {
		if placeholder == "$$" {
			return "$"
		}

		return currentTag
	})
}

// lookupGroup resolves a numbered or named group reference against the match.
func lookupGroup(ref string, names []string, tag string, matchIndex []int) (string, bool) {
	group := -1

	if n, err := strconv.Atoi(ref); err == nil {
		group = n
	} else {
		for i, name := range names {
			if name == ref {
				group = i

				break
			}
		}
	}

	if group < 0 || 2*group+1 >= len(matchIndex) {
		return "", false
	}

	start, end := matchIndex[2*group], matchIndex[2*group+1]
	if start < 0 {
		return "", true // Group exists but did not participate in the match.
	}

	return tag[start:end], true
}
