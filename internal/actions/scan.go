// Package actions implements updrift's core inspection pipeline: listing the
// running units, inspecting each one sequentially, classifying updates, and
// retrying whole batches when the registry pushes back.
package actions

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/distribution/reference"
	"github.com/sirupsen/logrus"

	"github.com/updrift/updrift/pkg/classify"
	"github.com/updrift/updrift/pkg/filters"
	"github.com/updrift/updrift/pkg/links"
	"github.com/updrift/updrift/pkg/tags"
	"github.com/updrift/updrift/pkg/types"
)

// ScanOptions configures one inspection run.
type ScanOptions struct {
	// Units restricts the scan to explicitly named unit IDs when non-empty.
	Units []types.UnitID

	// Delay is inserted between successive unit inspections to stay under
	// registry request-rate limits.
	Delay time.Duration

	// RetryDelay is applied before each whole-batch retry attempt.
	RetryDelay time.Duration

	// MaxAttempts bounds the number of whole-batch attempts. Values below 1
	// behave like 1.
	MaxAttempts int

	// Defaults are the global tag handling settings, merged with per-unit
	// label overrides.
	Defaults filters.Defaults

	// TagPolicy selects how the running tag compares against the biggest
	// remote tag.
	TagPolicy classify.TagPolicy

	// RestartCheck enables the compose config drift check.
	RestartCheck bool
}

// Scan inspects every unit the provider lists and returns one record per
// successfully inspected unit, sorted by (stack, sub-service, display name).
//
// Processing is fully sequential by design. When the registry becomes
// unavailable mid-batch the remaining units of the attempt are abandoned;
// after RetryDelay the next attempt picks up exactly the units that have not
// succeeded yet. Units still missing when the attempt cap is exhausted are
// simply absent from the result.
func Scan(
	ctx context.Context,
	units types.UnitProvider,
	registry types.RegistryProvider,
	hasher types.ComposeHasher,
	opts ScanOptions,
) ([]types.UnitRecord, error) {
	ids, err := units.ListUnits(ctx, opts.Units)
	if err != nil {
		return nil, err
	}

	logrus.WithField("unit_count", len(ids)).Info("Starting inspection run")

	maxAttempts := max(opts.MaxAttempts, 1)
	done := make(map[types.UnitID]types.UnitRecord, len(ids))

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := scanAttempt(ctx, ids, done, units, registry, hasher, opts)
		if err == nil {
			break
		}

		if !errors.Is(err, types.ErrRegistryUnavailable) {
			return nil, err
		}

		if attempt == maxAttempts {
			logrus.WithError(err).WithFields(logrus.Fields{
				"attempts":  attempt,
				"collected": len(done),
				"missing":   len(ids) - len(done),
			}).Warn("Registry still unavailable, reporting collected units only")

			break
		}

		logrus.WithError(err).WithFields(logrus.Fields{
			"attempt":     attempt,
			"retry_delay": opts.RetryDelay,
		}).Warn("Registry unavailable, retrying remaining units")

		if !sleep(ctx, opts.RetryDelay) {
			break
		}
	}

	records := make([]types.UnitRecord, 0, len(done))
	for _, record := range done {
		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].Stack != records[j].Stack {
			return records[i].Stack < records[j].Stack
		}

		if records[i].Service != records[j].Service {
			return records[i].Service < records[j].Service
		}

		return records[i].Name < records[j].Name
	})

	return records, nil
}

// scanAttempt processes every unit not yet done, in listing order. It returns
// a registry-unavailable error to abandon the remainder of the attempt; any
// other per-unit failure is logged and skips just that unit.
func scanAttempt(
	ctx context.Context,
	ids []types.UnitID,
	done map[types.UnitID]types.UnitRecord,
	units types.UnitProvider,
	registry types.RegistryProvider,
	hasher types.ComposeHasher,
	opts ScanOptions,
) error {
	first := true

	for _, id := range ids {
		if _, ok := done[id]; ok {
			continue
		}

		if !first && !sleep(ctx, opts.Delay) {
			return ctx.Err()
		}

		first = false

		record, err := scanUnit(ctx, id, units, registry, hasher, opts)
		if err != nil {
			if errors.Is(err, types.ErrRegistryUnavailable) {
				return err
			}

			logrus.WithError(err).WithField("unit", id.ShortID()).Error("Failed to inspect unit")

			continue
		}

		done[id] = record
	}

	return nil
}

// scanUnit fully inspects one unit: metadata, remote digest, remote tags,
// classification, and link rendering. There is no partial completion; a
// returned error abandons the unit as a whole.
func scanUnit(
	ctx context.Context,
	id types.UnitID,
	units types.UnitProvider,
	registry types.RegistryProvider,
	hasher types.ComposeHasher,
	opts ScanOptions,
) (types.UnitRecord, error) {
	info, err := units.InspectUnit(ctx, id)
	if err != nil {
		return types.UnitRecord{}, err
	}

	fields := logrus.Fields{
		"unit":  info.Name,
		"image": info.Image,
	}

	cfg, err := filters.Resolve(opts.Defaults, info.Labels)
	if err != nil {
		logrus.WithError(err).WithFields(fields).Warn("Malformed label override, using global defaults")

		cfg, err = filters.Resolve(opts.Defaults, nil)
		if err != nil {
			return types.UnitRecord{}, err
		}
	}

	record := types.UnitRecord{
		ID:          info.ID,
		Name:        info.Name,
		Stack:       info.Stack,
		Service:     info.Service,
		Image:       info.Image,
		LocalDigest: info.LocalDigest,
	}

	currentTag := runningTag(info.Image)

	record.Restart = restartVerdict(ctx, info, hasher, opts, fields)

	remoteDigest, err := registry.Digest(ctx, info.Image)
	if err != nil {
		if errors.Is(err, types.ErrRegistryUnavailable) {
			return types.UnitRecord{}, err
		}

		logrus.WithError(err).WithFields(fields).Debug("Failed to fetch remote digest")
	}

	record.RemoteDigest = remoteDigest
	record.Pull = classify.Pull(info.LocalDigest, remoteDigest)

	best, hasBest, err := biggestTag(ctx, registry, info.Image, cfg, fields)
	if err != nil {
		return types.UnitRecord{}, err
	}

	if hasBest {
		record.BestTag = best.Raw
		record.Tag = classify.Tag(currentTag, best.Raw, opts.TagPolicy)

		// A "newer" tag pointing at the image already running is an alias,
		// not an update; one extra digest lookup rules that out.
		if record.Tag.True() && info.LocalDigest != "" {
			candidateDigest, err := registry.TagDigest(ctx, info.Image, best.Raw)
			if err != nil {
				if errors.Is(err, types.ErrRegistryUnavailable) {
					return types.UnitRecord{}, err
				}

				logrus.WithError(err).WithFields(fields).Debug("Failed to fetch candidate tag digest")
			} else {
				record.Tag = classify.SuppressAlias(record.Tag, info.LocalDigest, candidateDigest)
			}
		}
	}

	record.Link, record.LinkForPull = renderLinks(cfg, best, hasBest, currentTag, fields)

	logrus.WithFields(fields).WithFields(logrus.Fields{
		"restart":  record.Restart,
		"pull":     record.Pull,
		"tag":      record.Tag,
		"best_tag": record.BestTag,
	}).Debug("Classified unit")

	return record, nil
}

// restartVerdict recomputes the unit's compose config hash and compares it
// against the hash declared at deploy time. Absent for units not managed by
// compose or when the hashes cannot be obtained.
func restartVerdict(
	ctx context.Context,
	info types.UnitInfo,
	hasher types.ComposeHasher,
	opts ScanOptions,
	fields logrus.Fields,
) types.Verdict {
	if !opts.RestartCheck || hasher == nil {
		return types.VerdictAbsent
	}

	if info.ConfigHash == "" || len(info.ConfigFiles) == 0 || info.Service == "" {
		return types.VerdictAbsent
	}

	hashes, err := hasher.ServiceHashes(ctx, info.WorkingDir, info.ConfigFiles)
	if err != nil {
		logrus.WithError(err).WithFields(fields).Warn("Failed to compute compose config hashes")

		return types.VerdictAbsent
	}

	return classify.Restart(info.ConfigHash, hashes[info.Service])
}

// biggestTag lists, filters and sorts the remote tags, returning the highest
// candidate. Sort failures and non-transient listing failures yield no winner
// rather than failing the unit.
func biggestTag(
	ctx context.Context,
	registry types.RegistryProvider,
	imageRef string,
	cfg types.FilterConfig,
	fields logrus.Fields,
) (tags.ParsedTag, bool, error) {
	rawTags, err := registry.Tags(ctx, imageRef)
	if err != nil {
		if errors.Is(err, types.ErrRegistryUnavailable) {
			return tags.ParsedTag{}, false, err
		}

		logrus.WithError(err).WithFields(fields).Debug("Failed to list remote tags")

		return tags.ParsedTag{}, false, nil
	}

	sorted, err := tags.Sort(rawTags, cfg)
	if err != nil {
		logrus.WithError(err).WithFields(fields).Warn("Tag sort keys not comparable, reporting no winning tag")

		return tags.ParsedTag{}, false, nil
	}

	best, ok := tags.Biggest(sorted)

	return best, ok, nil
}

// renderLinks expands the link template. With an include pattern the winning
// match drives the expansion; without one the template itself is the link and
// the pull link substitutes the running tag.
func renderLinks(
	cfg types.FilterConfig,
	best tags.ParsedTag,
	hasBest bool,
	currentTag string,
	fields logrus.Fields,
) (string, string) {
	if cfg.LinkTemplate == "" {
		return "", ""
	}

	if cfg.Include == nil {
		return cfg.LinkTemplate, links.RenderCurrent(cfg.LinkTemplate, currentTag)
	}

	if !hasBest || best.MatchIndex == nil {
		return "", ""
	}

	link, err := links.Render(cfg.LinkTemplate, cfg.Include, best.Raw, best.MatchIndex)
	if err != nil {
		logrus.WithError(err).WithFields(fields).Error("Failed to expand link template")

		return "", ""
	}

	return link, ""
}

// runningTag extracts the tag from the unit's image reference, "latest" when
// the reference carries none.
func runningTag(imageRef string) string {
	normalizedRef, err := reference.ParseDockerRef(imageRef)
	if err != nil {
		return ""
	}

	if tagged, ok := normalizedRef.(reference.NamedTagged); ok {
		return tagged.Tag()
	}

	return ""
}

// sleep waits for the duration unless the context ends first, reporting
// whether the full duration elapsed. A non-positive duration returns
// immediately.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
