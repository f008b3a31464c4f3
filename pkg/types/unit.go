package types

import "regexp"

// UnitID identifies a single inspected unit: a container ID for the compose
// pipeline, a service ID for the swarm pipeline.
type UnitID string

// ShortID returns the 12-character short version of a unit ID.
func (id UnitID) ShortID() string {
	const shortLen = 12

	s := string(id)
	if len(s) > shortLen {
		return s[:shortLen]
	}

	return s
}

// UnitInfo is the raw metadata an inspection provider returns for one unit.
type UnitInfo struct {
	ID      UnitID            // Provider-specific identity hash.
	Name    string            // Display name.
	Stack   string            // Compose project or swarm stack namespace.
	Service string            // Sub-service name within the stack.
	Image   string            // Image reference the unit runs, including tag.
	Labels  map[string]string // Unit labels, source of per-unit overrides.

	// LocalDigest is the repo digest of the running image, without the
	// algorithm prefix. Empty when the engine does not know it.
	LocalDigest string

	// ConfigHash is the config hash the orchestrator declared at deploy time
	// (compose pipeline only, empty otherwise).
	ConfigHash string

	// ConfigFiles and WorkingDir locate the compose file set the unit was
	// deployed from, used to recompute config hashes (compose pipeline only).
	ConfigFiles []string
	WorkingDir  string
}

// UnitRecord is one row of the final report: the unit's identity plus the
// three independent update verdicts. Records are built once per run and are
// read-only after construction.
type UnitRecord struct {
	ID      UnitID `json:"id"`
	Name    string `json:"name"`
	Stack   string `json:"stack"`
	Service string `json:"service"`
	Image   string `json:"image"`

	LocalDigest  string `json:"local_digest,omitempty"`
	RemoteDigest string `json:"remote_digest,omitempty"`

	// BestTag is the highest remote tag under the configured ordering, empty
	// when no remote tag survived filtering.
	BestTag string `json:"best_tag,omitempty"`

	// Link is the rendered link template for the best tag; LinkForPull points
	// at the currently running version instead.
	Link        string `json:"link,omitempty"`
	LinkForPull string `json:"link_for_pull,omitempty"`

	Restart Verdict `json:"restart"`
	Pull    Verdict `json:"pull"`
	Tag     Verdict `json:"tag"`
}

// FilterConfig is the effective per-unit tag handling configuration, resolved
// once per unit from global defaults and optional label overrides.
type FilterConfig struct {
	// Include must match a tag anchored at its start for the tag to be
	// considered; its capture groups form the sort key. Nil disables the
	// include filter.
	Include *regexp.Regexp

	// Exclude drops any matching tag outright, checked before Include.
	Exclude *regexp.Regexp

	// Numeric converts all-digit sort key components to integers so that
	// "10" orders above "9".
	Numeric bool

	// LinkTemplate is expanded against the winning include match.
	LinkTemplate string
}
