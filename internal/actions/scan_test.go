package actions

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/updrift/updrift/pkg/classify"
	"github.com/updrift/updrift/pkg/filters"
	"github.com/updrift/updrift/pkg/types"
)

type fakeUnits struct {
	order     []types.UnitID
	infos     map[types.UnitID]types.UnitInfo
	inspected map[types.UnitID]int
}

func newFakeUnits(infos ...types.UnitInfo) *fakeUnits {
	f := &fakeUnits{
		infos:     make(map[types.UnitID]types.UnitInfo, len(infos)),
		inspected: make(map[types.UnitID]int),
	}

	for _, info := range infos {
		f.order = append(f.order, info.ID)
		f.infos[info.ID] = info
	}

	return f
}

func (f *fakeUnits) ListUnits(_ context.Context, ids []types.UnitID) ([]types.UnitID, error) {
	if len(ids) > 0 {
		return ids, nil
	}

	return f.order, nil
}

func (f *fakeUnits) InspectUnit(_ context.Context, id types.UnitID) (types.UnitInfo, error) {
	f.inspected[id]++

	info, ok := f.infos[id]
	if !ok {
		return types.UnitInfo{}, fmt.Errorf("no such unit %s", id)
	}

	return info, nil
}

type fakeRegistry struct {
	tags       map[string][]string
	digests    map[string]string // keyed by "imageRef" for the running tag
	tagDigests map[string]string // keyed by tag

	failTagsCalls int // fail the first N Tags calls as unavailable
	tagsCalls     int
}

func (f *fakeRegistry) Tags(_ context.Context, imageRef string) ([]string, error) {
	f.tagsCalls++
	if f.tagsCalls <= f.failTagsCalls {
		return nil, fmt.Errorf("%w: 429 Too Many Requests", types.ErrRegistryUnavailable)
	}

	return f.tags[imageRef], nil
}

func (f *fakeRegistry) Digest(_ context.Context, imageRef string) (string, error) {
	return f.digests[imageRef], nil
}

func (f *fakeRegistry) TagDigest(_ context.Context, _ string, tag string) (string, error) {
	return f.tagDigests[tag], nil
}

type fakeHasher struct {
	hashes map[string]string
	err    error
	calls  int
}

func (f *fakeHasher) ServiceHashes(context.Context, string, []string) (map[string]string, error) {
	f.calls++

	return f.hashes, f.err
}

func TestScanReportsTagAndPullUpdates(t *testing.T) {
	units := newFakeUnits(types.UnitInfo{
		ID:          "unit1",
		Name:        "blog_app_1",
		Stack:       "blog",
		Service:     "app",
		Image:       "app:1.2.0",
		LocalDigest: "aaa",
	})

	registry := &fakeRegistry{
		tags:       map[string][]string{"app:1.2.0": {"1.2.0", "1.3.0", "1.3.0-rc1"}},
		digests:    map[string]string{"app:1.2.0": "aaa"},
		tagDigests: map[string]string{"1.3.0": "bbb"},
	}

	records, err := Scan(t.Context(), units, registry, nil, ScanOptions{
		TagPolicy: classify.TagPolicyGreater,
	})
	require.NoError(t, err)
	require.Len(t, records, 1)

	record := records[0]
	assert.Equal(t, "1.3.0", record.BestTag)
	assert.Equal(t, types.VerdictTrue, record.Tag)
	assert.Equal(t, types.VerdictFalse, record.Pull)
	assert.Equal(t, types.VerdictAbsent, record.Restart)
}

func TestScanSuppressesTagAliases(t *testing.T) {
	units := newFakeUnits(types.UnitInfo{
		ID:          "unit1",
		Name:        "blog_app_1",
		Image:       "app:1.2.0",
		LocalDigest: "aaa",
	})

	registry := &fakeRegistry{
		tags:    map[string][]string{"app:1.2.0": {"1.2.0", "1.3.0"}},
		digests: map[string]string{"app:1.2.0": "aaa"},
		// The bigger tag is just an alias of the running image.
		tagDigests: map[string]string{"1.3.0": "aaa"},
	}

	records, err := Scan(t.Context(), units, registry, nil, ScanOptions{
		TagPolicy: classify.TagPolicyGreater,
	})
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, "1.3.0", records[0].BestTag)
	assert.Equal(t, types.VerdictFalse, records[0].Tag)
}

func TestScanPullCheckAbsentWithoutLocalDigest(t *testing.T) {
	units := newFakeUnits(types.UnitInfo{
		ID:    "unit1",
		Name:  "app",
		Image: "app:1.2.0",
	})

	registry := &fakeRegistry{
		digests: map[string]string{"app:1.2.0": "aaa"},
	}

	records, err := Scan(t.Context(), units, registry, nil, ScanOptions{})
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, types.VerdictAbsent, records[0].Pull)
	assert.Equal(t, types.VerdictAbsent, records[0].Tag)
}

func TestScanRestartCheck(t *testing.T) {
	units := newFakeUnits(types.UnitInfo{
		ID:          "unit1",
		Name:        "blog_app_1",
		Stack:       "blog",
		Service:     "app",
		Image:       "app:1.2.0",
		ConfigHash:  "deployed",
		ConfigFiles: []string{"docker-compose.yml"},
		WorkingDir:  "/srv/blog",
	})

	hasher := &fakeHasher{hashes: map[string]string{"app": "current"}}

	records, err := Scan(t.Context(), units, &fakeRegistry{}, hasher, ScanOptions{
		RestartCheck: true,
	})
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, types.VerdictTrue, records[0].Restart)
	assert.Equal(t, 1, hasher.calls)
}

func TestScanRetriesSkipSucceededUnits(t *testing.T) {
	units := newFakeUnits(
		types.UnitInfo{ID: "unit1", Name: "a", Image: "app:1.0"},
		types.UnitInfo{ID: "unit2", Name: "b", Image: "app:1.0"},
	)

	// First attempt: unit1 succeeds, unit2 hits the rate limit. The second
	// attempt must only reprocess unit2.
	registry := &fakeRegistry{
		tags: map[string][]string{"app:1.0": {"1.0", "1.1"}},
	}
	failing := &failSecondCall{inner: registry}

	records, err := Scan(t.Context(), units, failing, nil, ScanOptions{
		MaxAttempts: 2,
	})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, 1, units.inspected["unit1"], "already-succeeded unit must not be reinspected")
	assert.Equal(t, 2, units.inspected["unit2"])
}

// failSecondCall wraps a registry, failing only the second Tags call with a
// transient error.
type failSecondCall struct {
	inner *fakeRegistry
	calls int
}

func (f *failSecondCall) Tags(ctx context.Context, imageRef string) ([]string, error) {
	f.calls++
	if f.calls == 2 {
		return nil, fmt.Errorf("%w: 429 Too Many Requests", types.ErrRegistryUnavailable)
	}

	return f.inner.Tags(ctx, imageRef)
}

func (f *failSecondCall) Digest(ctx context.Context, imageRef string) (string, error) {
	return f.inner.Digest(ctx, imageRef)
}

func (f *failSecondCall) TagDigest(ctx context.Context, imageRef, tag string) (string, error) {
	return f.inner.TagDigest(ctx, imageRef, tag)
}

func TestScanGivesUpAfterAttemptCap(t *testing.T) {
	units := newFakeUnits(
		types.UnitInfo{ID: "unit1", Name: "a", Image: "app:1.0"},
	)

	registry := &fakeRegistry{failTagsCalls: 99}

	records, err := Scan(t.Context(), units, registry, nil, ScanOptions{
		MaxAttempts: 3,
	})
	require.NoError(t, err)

	// The unit never completed, so it is absent from the output.
	assert.Empty(t, records)
	assert.Equal(t, 3, registry.tagsCalls)
}

func TestScanSkipsUnitsThatFailInspection(t *testing.T) {
	units := newFakeUnits(
		types.UnitInfo{ID: "unit1", Name: "a", Image: "app:1.0"},
	)
	units.order = append(units.order, "ghost")

	records, err := Scan(t.Context(), units, &fakeRegistry{}, nil, ScanOptions{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, types.UnitID("unit1"), records[0].ID)
}

func TestScanOrdersRecords(t *testing.T) {
	units := newFakeUnits(
		types.UnitInfo{ID: "u3", Name: "z", Stack: "blog", Service: "web", Image: "app:1.0"},
		types.UnitInfo{ID: "u1", Name: "a", Stack: "api", Service: "web", Image: "app:1.0"},
		types.UnitInfo{ID: "u2", Name: "a", Stack: "blog", Service: "db", Image: "app:1.0"},
	)

	records, err := Scan(t.Context(), units, &fakeRegistry{}, nil, ScanOptions{})
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, types.UnitID("u1"), records[0].ID)
	assert.Equal(t, types.UnitID("u2"), records[1].ID)
	assert.Equal(t, types.UnitID("u3"), records[2].ID)
}

func TestScanAppliesLabelOverrides(t *testing.T) {
	units := newFakeUnits(types.UnitInfo{
		ID:    "unit1",
		Name:  "app",
		Image: "app:1.2",
		Labels: map[string]string{
			filters.ExcludeLabel: "rc",
		},
	})

	registry := &fakeRegistry{
		tags: map[string][]string{"app:1.2": {"1.2", "1.3-rc1", "1.3-rc2"}},
	}

	records, err := Scan(t.Context(), units, registry, nil, ScanOptions{})
	require.NoError(t, err)
	require.Len(t, records, 1)

	// All newer candidates were rc-tagged and excluded by the label.
	assert.Equal(t, "1.2", records[0].BestTag)
}

func TestScanRendersLinks(t *testing.T) {
	units := newFakeUnits(types.UnitInfo{
		ID:    "unit1",
		Name:  "app",
		Image: "app:1.2.0",
	})

	registry := &fakeRegistry{
		tags: map[string][]string{"app:1.2.0": {"1.2.0", "1.3.0"}},
	}

	records, err := Scan(t.Context(), units, registry, nil, ScanOptions{
		Defaults: filters.Defaults{
			Include:      `(\d+)\.(\d+)\.(\d+)$`,
			Numeric:      true,
			LinkTemplate: "https://example.com/releases/$1.$2.$3",
		},
	})
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, "1.3.0", records[0].BestTag)
	assert.Equal(t, "https://example.com/releases/1.3.0", records[0].Link)
	assert.Empty(t, records[0].LinkForPull)
}

func TestScanVerbatimLinkWithoutInclude(t *testing.T) {
	units := newFakeUnits(types.UnitInfo{
		ID:    "unit1",
		Name:  "app",
		Image: "app:1.2.0",
	})

	records, err := Scan(t.Context(), units, &fakeRegistry{}, nil, ScanOptions{
		Defaults: filters.Defaults{
			LinkTemplate: "https://example.com/releases/$1",
		},
	})
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, "https://example.com/releases/$1", records[0].Link)
	assert.Equal(t, "https://example.com/releases/1.2.0", records[0].LinkForPull)
}

func TestScanPropagatesListFailure(t *testing.T) {
	failing := &failingLister{}

	_, err := Scan(t.Context(), failing, &fakeRegistry{}, nil, ScanOptions{})
	require.Error(t, err)
}

type failingLister struct{}

func (f *failingLister) ListUnits(context.Context, []types.UnitID) ([]types.UnitID, error) {
	return nil, errors.New("daemon unreachable")
}

func (f *failingLister) InspectUnit(context.Context, types.UnitID) (types.UnitInfo, error) {
	return types.UnitInfo{}, errors.New("daemon unreachable")
}
