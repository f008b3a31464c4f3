package types

import (
	"context"
	"errors"
)

// ErrRegistryUnavailable marks transient, rate-limit-like registry failures.
// A batch attempt is abandoned when a provider returns an error wrapping it;
// remaining units are picked up by the next attempt.
var ErrRegistryUnavailable = errors.New("registry unavailable")

// UnitProvider lists and inspects the currently running units of one
// orchestration flavor.
type UnitProvider interface {
	// ListUnits returns the identities of running units, restricted to the
	// given IDs when non-empty.
	ListUnits(ctx context.Context, ids []UnitID) ([]UnitID, error)

	// InspectUnit resolves a unit's metadata.
	InspectUnit(ctx context.Context, id UnitID) (UnitInfo, error)
}

// RegistryProvider answers questions about an image reference's remote
// registry state.
type RegistryProvider interface {
	// Tags lists the tags available for the reference's repository.
	Tags(ctx context.Context, imageRef string) ([]string, error)

	// Digest returns the remote digest for the reference's own tag, without
	// the algorithm prefix.
	Digest(ctx context.Context, imageRef string) (string, error)

	// TagDigest returns the remote digest for an arbitrary tag of the
	// reference's repository.
	TagDigest(ctx context.Context, imageRef string, tag string) (string, error)
}

// ComposeHasher computes config hashes for the sub-services of a compose file
// set. Implementations cache per file set; the pipeline is single-threaded.
type ComposeHasher interface {
	// ServiceHashes maps sub-service name to config hash for the file set.
	ServiceHashes(ctx context.Context, workingDir string, files []string) (map[string]string, error)
}
