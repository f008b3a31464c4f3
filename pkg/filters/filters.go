// Package filters resolves the effective per-unit tag handling configuration.
// Global defaults from the command line merge with optional per-unit label
// overrides; overrides win unless override handling is globally disabled.
package filters

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/updrift/updrift/pkg/types"
)

// Labels holding per-unit overrides on containers and swarm services.
const (
	// IncludeLabel overrides the include pattern for one unit.
	IncludeLabel = "updrift.include"
	// ExcludeLabel overrides the exclude pattern for one unit.
	ExcludeLabel = "updrift.exclude"
	// NumericLabel overrides numeric sort key parsing for one unit.
	NumericLabel = "updrift.numeric"
	// LinkLabel overrides the link template for one unit.
	LinkLabel = "updrift.link"
)

// Errors for filter config resolution.
var (
	// errBadPattern indicates an include or exclude pattern does not compile.
	errBadPattern = errors.New("invalid filter pattern")
	// errBadBool indicates a boolean override label holds a non-boolean value.
	errBadBool = errors.New("invalid boolean label value")
)

// Defaults carries the global tag handling configuration shared by all units.
type Defaults struct {
	Include      string // Include pattern source, empty disables the filter.
	Exclude      string // Exclude pattern source, empty disables the filter.
	Numeric      bool   // Parse all-digit key components as integers.
	LinkTemplate string // Link template, empty disables link rendering.

	// IgnoreOverrides disables per-unit label overrides entirely.
	IgnoreOverrides bool
}

// Resolve merges the global defaults with a unit's label overrides into the
// effective config for that unit. It is a pure function of its inputs.
//
// A malformed override is a per-unit error: the caller logs it and falls back
// to Resolve(defaults, nil).
func Resolve(defaults Defaults, labels map[string]string) (types.FilterConfig, error) {
	include := defaults.Include
	exclude := defaults.Exclude
	numeric := defaults.Numeric
	linkTemplate := defaults.LinkTemplate

	if !defaults.IgnoreOverrides {
		if v, ok := labels[IncludeLabel]; ok {
			include = v
		}

		if v, ok := labels[ExcludeLabel]; ok {
			exclude = v
		}

		if v, ok := labels[NumericLabel]; ok {
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				return types.FilterConfig{}, fmt.Errorf("%w: %s=%q", errBadBool, NumericLabel, v)
			}

			numeric = parsed
		}

		if v, ok := labels[LinkLabel]; ok {
			linkTemplate = v
		}
	}

	cfg := types.FilterConfig{
		Numeric:      numeric,
		LinkTemplate: linkTemplate,
	}

	if include != "" {
		re, err := regexp.Compile(anchored(include))
		if err != nil {
			return types.FilterConfig{}, fmt.Errorf("%w: include %q: %w", errBadPattern, include, err)
		}

		cfg.Include = re
	}

	if exclude != "" {
		re, err := regexp.Compile(exclude)
		if err != nil {
			return types.FilterConfig{}, fmt.Errorf("%w: exclude %q: %w", errBadPattern, exclude, err)
		}

		cfg.Exclude = re
	}

	return cfg, nil
}

// anchored forces the include pattern to match at the start of a tag.
func anchored(pattern string) string {
	if strings.HasPrefix(pattern, "^") {
		return pattern
	}

	return "^" + pattern
}
