// Package manifest constructs the registry API URLs the client fetches:
// manifest URLs for digest retrieval and tag list URLs for enumeration.
package manifest

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/distribution/reference"
	"github.com/sirupsen/logrus"

	"github.com/updrift/updrift/pkg/registry/helpers"
)

// Errors for manifest URL construction.
var (
	// errMissingTag indicates the image reference carries no tag and none was
	// supplied explicitly.
	errMissingTag = errors.New("image reference has no tag")
	// errFailedParseImageName indicates the image reference does not parse.
	errFailedParseImageName = errors.New("failed to parse image name")
)

// BuildManifestURL constructs the URL of an image's manifest for the given
// tag. An empty tag selects the reference's own tag.
func BuildManifestURL(imageRef, tag string) (string, error) {
	normalizedRef, err := reference.ParseDockerRef(imageRef)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errFailedParseImageName, err)
	}

	if tag == "" {
		tagged, isTagged := normalizedRef.(reference.NamedTagged)
		if !isTagged {
			return "", fmt.Errorf("%w: %s", errMissingTag, normalizedRef.String())
		}

		tag = tagged.Tag()
	}

	host, _ := helpers.GetRegistryAddress(normalizedRef.Name())

	manifestURL := url.URL{
		Scheme: "https",
		Host:   host,
		Path:   fmt.Sprintf("/v2/%s/manifests/%s", reference.Path(normalizedRef), tag),
	}

	logrus.WithFields(logrus.Fields{
		"image": imageRef,
		"url":   manifestURL.String(),
	}).Debug("Built manifest URL")

	return manifestURL.String(), nil
}

// BuildTagsURL constructs the URL listing the tags of an image's repository.
func BuildTagsURL(imageRef string) (string, error) {
	normalizedRef, err := reference.ParseDockerRef(imageRef)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errFailedParseImageName, err)
	}

	host, _ := helpers.GetRegistryAddress(normalizedRef.Name())

	tagsURL := url.URL{
		Scheme: "https",
		Host:   host,
		Path:   fmt.Sprintf("/v2/%s/tags/list", reference.Path(normalizedRef)),
	}

	return tagsURL.String(), nil
}
