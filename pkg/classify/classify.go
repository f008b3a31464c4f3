// Package classify turns the collected local and remote facts about a unit
// into three independent tri-state verdicts: whether a config change would be
// fixed by a restart, whether pulling the running tag would fetch a different
// image, and whether a larger tag exists at the registry. Each check returns
// an absent verdict when its inputs are incomplete; absent is never collapsed
// into false.
package classify

import (
	"strings"

	"github.com/updrift/updrift/pkg/registry/helpers"
	"github.com/updrift/updrift/pkg/types"
	"github.com/updrift/updrift/pkg/versions"
)

// TagPolicy selects how the running tag and the biggest remote tag are
// compared. The compose and swarm pipelines historically disagreed here, so
// the policy is explicit rather than baked into either pipeline.
type TagPolicy int

const (
	// TagPolicyGreater reports an update when the remote tag parses greater
	// than the running tag, degrading to a lexical string comparison when
	// either side does not parse as a version.
	TagPolicyGreater TagPolicy = iota

	// TagPolicyDiffer reports an update when the remote tag differs from the
	// running tag at all.
	TagPolicyDiffer
)

// Restart compares the config hash declared on a unit at deploy time against
// the hash recomputed from its current compose files. Absent when either side
// is missing, true when they differ.
func Restart(declared, computed string) types.Verdict {
	if declared == "" || computed == "" {
		return types.VerdictAbsent
	}

	return types.Of(declared != computed)
}

// Pull compares the local repo digest of the running image against the remote
// digest for the same tag. Absent when either digest is unavailable, true
// when they differ.
func Pull(localDigest, remoteDigest string) types.Verdict {
	if localDigest == "" || remoteDigest == "" {
		return types.VerdictAbsent
	}

	return types.Of(helpers.NormalizeDigest(localDigest) != helpers.NormalizeDigest(remoteDigest))
}

// Tag compares the running tag against the biggest remote tag under the given
// policy. Absent when no remote tag survived filtering.
func Tag(currentTag, biggestTag string, policy TagPolicy) types.Verdict {
	if biggestTag == "" {
		return types.VerdictAbsent
	}

	if policy == TagPolicyDiffer {
		return types.Of(biggestTag != currentTag)
	}

	currentKey, currentOK := versions.Parse(currentTag)
	biggestKey, biggestOK := versions.Parse(biggestTag)

	if currentOK && biggestOK {
		return types.Of(currentKey.Less(biggestKey))
	}

	// Degraded signal rather than absent: plain lexical comparison.
	return types.Of(strings.Compare(biggestTag, currentTag) > 0)
}

// SuppressAlias cancels a positive tag verdict when the candidate tag's
// remote digest equals the running digest, meaning the "newer" tag is just an
// alias for the image already running. Verdicts other than true pass through
// unchanged, as do comparisons with a missing digest.
func SuppressAlias(verdict types.Verdict, runningDigest, candidateDigest string) types.Verdict {
	if verdict != types.VerdictTrue || runningDigest == "" || candidateDigest == "" {
		return verdict
	}

	if helpers.NormalizeDigest(runningDigest) == helpers.NormalizeDigest(candidateDigest) {
		return types.VerdictFalse
	}

	return verdict
}
