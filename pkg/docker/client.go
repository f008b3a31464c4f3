// Package docker sources units from a Docker engine: running containers with
// their compose labels for the compose pipeline, swarm services for the swarm
// pipeline. Both providers feed the same inspection pipeline; only identity
// and digest sourcing differ.
package docker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	dockerTypes "github.com/docker/docker/api/types"
	dockerContainer "github.com/docker/docker/api/types/container"
	dockerClient "github.com/docker/docker/client"
	"github.com/sirupsen/logrus"

	"github.com/updrift/updrift/pkg/compose"
	"github.com/updrift/updrift/pkg/registry/helpers"
	"github.com/updrift/updrift/pkg/types"
)

// StackNamespaceLabel holds the swarm stack name on services deployed with
// "docker stack deploy".
const StackNamespaceLabel = "com.docker.stack.namespace"

// Errors for engine operations.
var (
	// errListUnitsFailed indicates the engine could not list units.
	errListUnitsFailed = errors.New("failed to list units")
	// errInspectUnitFailed indicates the engine could not inspect a unit.
	errInspectUnitFailed = errors.New("failed to inspect unit")
)

// Engine wraps the Docker API client shared by both unit providers.
type Engine struct {
	api dockerClient.APIClient
}

// NewEngine connects to the Docker daemon using the standard environment
// variables (DOCKER_HOST, DOCKER_TLS_VERIFY, DOCKER_API_VERSION).
func NewEngine() (*Engine, error) {
	api, err := dockerClient.NewClientWithOpts(
		dockerClient.FromEnv,
		dockerClient.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Docker client: %w", err)
	}

	return &Engine{api: api}, nil
}

// ComposeProvider lists and inspects running Compose-managed containers.
type ComposeProvider struct {
	engine *Engine
}

// NewComposeProvider builds the compose pipeline's unit provider.
func NewComposeProvider(engine *Engine) *ComposeProvider {
	return &ComposeProvider{engine: engine}
}

// ListUnits returns the IDs of running Compose-managed containers, restricted
// to the explicitly requested IDs when any are given.
func (p *ComposeProvider) ListUnits(ctx context.Context, ids []types.UnitID) ([]types.UnitID, error) {
	containers, err := p.engine.api.ContainerList(ctx, dockerContainer.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errListUnitsFailed, err)
	}

	units := make([]types.UnitID, 0, len(containers))

	for _, summary := range containers {
		if !compose.IsManaged(summary.Labels) {
			continue
		}

		units = append(units, types.UnitID(summary.ID))
	}

	logrus.WithField("count", len(units)).Debug("Listed compose containers")

	return restrict(units, ids), nil
}

// InspectUnit resolves a container's metadata: compose identity from labels,
// the image reference it runs, and the local repo digest of that image.
func (p *ComposeProvider) InspectUnit(ctx context.Context, id types.UnitID) (types.UnitInfo, error) {
	info, err := p.engine.api.ContainerInspect(ctx, string(id))
	if err != nil {
		return types.UnitInfo{}, fmt.Errorf("%w: %s: %w", errInspectUnitFailed, id.ShortID(), err)
	}

	labels := map[string]string{}
	imageRef := ""

	if info.Config != nil {
		labels = info.Config.Labels
		imageRef = info.Config.Image
	}

	localDigest := ""

	if imageInfo, err := p.engine.api.ImageInspect(ctx, info.Image); err != nil {
		// A missing local digest degrades the pull check to absent.
		logrus.WithError(err).WithField("container", info.Name).Debug("Failed to inspect image")
	} else {
		localDigest = repoDigest(imageInfo.RepoDigests)
	}

	return types.UnitInfo{
		ID:          id,
		Name:        strings.TrimPrefix(info.Name, "/"),
		Stack:       labels[compose.ProjectLabel],
		Service:     labels[compose.ServiceLabel],
		Image:       imageRef,
		Labels:      labels,
		LocalDigest: localDigest,
		ConfigHash:  labels[compose.ConfigHashLabel],
		ConfigFiles: compose.ConfigFiles(labels),
		WorkingDir:  labels[compose.WorkingDirLabel],
	}, nil
}

// SwarmProvider lists and inspects swarm services.
type SwarmProvider struct {
	engine *Engine
}

// NewSwarmProvider builds the swarm pipeline's unit provider.
func NewSwarmProvider(engine *Engine) *SwarmProvider {
	return &SwarmProvider{engine: engine}
}

// ListUnits returns the IDs of swarm services, restricted to the explicitly
// requested IDs when any are given.
func (p *SwarmProvider) ListUnits(ctx context.Context, ids []types.UnitID) ([]types.UnitID, error) {
	services, err := p.engine.api.ServiceList(ctx, dockerTypes.ServiceListOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errListUnitsFailed, err)
	}

	units := make([]types.UnitID, 0, len(services))
	for _, service := range services {
		units = append(units, types.UnitID(service.ID))
	}

	logrus.WithField("count", len(units)).Debug("Listed swarm services")

	return restrict(units, ids), nil
}

// InspectUnit resolves a service's metadata. Swarm pins the running image by
// digest inside the image reference ("repo:tag@sha256:..."), which doubles as
// the local digest.
func (p *SwarmProvider) InspectUnit(ctx context.Context, id types.UnitID) (types.UnitInfo, error) {
	service, _, err := p.engine.api.ServiceInspectWithRaw(ctx, string(id), dockerTypes.ServiceInspectOptions{})
	if err != nil {
		return types.UnitInfo{}, fmt.Errorf("%w: %s: %w", errInspectUnitFailed, id.ShortID(), err)
	}

	imageRef := ""
	if service.Spec.TaskTemplate.ContainerSpec != nil {
		imageRef = service.Spec.TaskTemplate.ContainerSpec.Image
	}

	imageRef, localDigest := splitPinnedDigest(imageRef)

	stack := service.Spec.Labels[StackNamespaceLabel]
	name := service.Spec.Name

	return types.UnitInfo{
		ID:          id,
		Name:        name,
		Stack:       stack,
		Service:     strings.TrimPrefix(name, stack+"_"),
		Image:       imageRef,
		Labels:      service.Spec.Labels,
		LocalDigest: localDigest,
	}, nil
}

// restrict intersects the listed units with an explicitly requested ID set,
// returning the listed units unchanged when no explicit set was given.
func restrict(units, requested []types.UnitID) []types.UnitID {
	if len(requested) == 0 {
		return units
	}

	wanted := make(map[types.UnitID]struct{}, len(requested))
	for _, id := range requested {
		wanted[id] = struct{}{}
	}

	restricted := make([]types.UnitID, 0, len(requested))

	for _, id := range units {
		if _, ok := wanted[id]; ok {
			restricted = append(restricted, id)
		}
	}

	return restricted
}

// repoDigest extracts the first repo digest's hash part, normalized.
func repoDigest(repoDigests []string) string {
	for _, digest := range repoDigests {
		if _, hash, ok := strings.Cut(digest, "@"); ok {
			return helpers.NormalizeDigest(hash)
		}
	}

	return ""
}

// splitPinnedDigest splits "repo:tag@sha256:..." into the tagged reference
// and the normalized digest.
func splitPinnedDigest(imageRef string) (string, string) {
	ref, digest, ok := strings.Cut(imageRef, "@")
	if !ok {
		return imageRef, ""
	}

	return ref, helpers.NormalizeDigest(digest)
}
