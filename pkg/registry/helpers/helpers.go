// Package helpers provides small utilities shared by the registry client:
// registry address extraction from image references and digest normalization.
package helpers

import (
	"fmt"
	"strings"

	"github.com/distribution/reference"
)

// Domains for Docker Hub, the default registry.
const (
	DefaultRegistryDomain = "docker.io"
	DefaultRegistryHost   = "index.docker.io"
)

// GetRegistryAddress extracts the registry host from an image reference,
// mapping Docker Hub's default domain to its canonical index host.
func GetRegistryAddress(imageRef string) (string, error) {
	normalizedRef, err := reference.ParseNormalizedNamed(imageRef)
	if err != nil {
		return "", fmt.Errorf("failed to parse image reference: %w", err)
	}

	address := reference.Domain(normalizedRef)
	if address == DefaultRegistryDomain {
		address = DefaultRegistryHost
	}

	return address, nil
}

// NormalizeDigest strips the algorithm prefix from a digest so digests from
// different sources compare consistently.
func NormalizeDigest(digest string) string {
	return strings.TrimPrefix(digest, "sha256:")
}
