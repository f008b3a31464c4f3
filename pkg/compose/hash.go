package compose

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// errHashCommandFailed indicates the compose CLI could not produce config
// hashes for a file set.
var errHashCommandFailed = errors.New("failed to compute compose config hashes")

// commandRunner executes one external command in a working directory and
// returns its stdout. Injected so tests run without a compose binary.
type commandRunner func(ctx context.Context, workingDir string, name string, args ...string) ([]byte, error)

// Hasher computes config hashes per sub-service by shelling out to
// "docker compose config --hash". Results are cached per resolved file set so
// multiple services of the same project hash their files once; the pipeline
// is single-threaded, so the cache is unlocked.
type Hasher struct {
	run   commandRunner
	cache map[string]map[string]string
}

// NewHasher builds a Hasher using the docker CLI from PATH.
func NewHasher() *Hasher {
	return &Hasher{
		run: func(ctx context.Context, workingDir string, name string, args ...string) ([]byte, error) {
			cmd := exec.CommandContext(ctx, name, args...)
			cmd.Dir = workingDir

			var stdout, stderr bytes.Buffer

			cmd.Stdout = &stdout
			cmd.Stderr = &stderr

			if err := cmd.Run(); err != nil {
				return nil, fmt.Errorf("%s: %w", strings.TrimSpace(stderr.String()), err)
			}

			return stdout.Bytes(), nil
		},
		cache: make(map[string]map[string]string),
	}
}

// ServiceHashes maps sub-service name to config hash for the given compose
// file set, computing it on first use and serving it from cache afterwards.
func (h *Hasher) ServiceHashes(ctx context.Context, workingDir string, files []string) (map[string]string, error) {
	key := cacheKey(workingDir, files)
	if hashes, ok := h.cache[key]; ok {
		return hashes, nil
	}

	args := []string{"compose"}
	for _, file := range files {
		args = append(args, "-f", file)
	}

	args = append(args, "config", "--hash=*")

	out, err := h.run(ctx, workingDir, "docker", args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errHashCommandFailed, err)
	}

	hashes := parseHashes(out)
	h.cache[key] = hashes

	logrus.WithFields(logrus.Fields{
		"working_dir": workingDir,
		"files":       files,
		"services":    len(hashes),
	}).Debug("Computed compose config hashes")

	return hashes, nil
}

// parseHashes reads "service hash" lines from the compose CLI output.
func parseHashes(out []byte) map[string]string {
	hashes := make(map[string]string)
	scanner := bufio.NewScanner(bytes.NewReader(out))

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 2 {
			hashes[fields[0]] = fields[1]
		}
	}

	return hashes
}

// cacheKey builds the resolved file-set signature.
func cacheKey(workingDir string, files []string) string {
	return workingDir + "\x00" + strings.Join(files, "\x00")
}
