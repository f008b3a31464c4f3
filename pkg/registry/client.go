package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/distribution/reference"
	"github.com/sirupsen/logrus"

	"github.com/updrift/updrift/pkg/registry/auth"
	"github.com/updrift/updrift/pkg/registry/helpers"
	"github.com/updrift/updrift/pkg/registry/manifest"
	"github.com/updrift/updrift/pkg/types"
)

// ContentDigestHeader is the HTTP header carrying a manifest's digest.
const ContentDigestHeader = "Docker-Content-Digest"

// UserAgent identifies updrift in registry requests. It can be overridden at
// build time with linker flags.
var UserAgent = "updrift/unknown"

// Errors for registry client operations.
var (
	// errFailedParseImageName indicates the image reference does not parse.
	errFailedParseImageName = errors.New("failed to parse image name")
	// errUnexpectedStatus indicates a response status the client cannot use.
	errUnexpectedStatus = errors.New("registry responded with unexpected status")
	// errMissingDigestHeader indicates a manifest response without a digest.
	errMissingDigestHeader = errors.New("registry response carried no digest header")
)

// tagsResponse is the JSON body of a /v2/<name>/tags/list page.
type tagsResponse struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

// Client answers tag and digest queries against Docker Registry v2 APIs. The
// inspection pipeline is single-threaded, so the client keeps an unlocked
// per-repository token cache.
type Client struct {
	httpClient  *http.Client
	credentials *CredentialStore
	tokens      map[string]string
}

// NewClient builds a registry client resolving credentials from the given
// store.
func NewClient(credentials *CredentialStore) *Client {
	return &Client{
		httpClient:  &http.Client{},
		credentials: credentials,
		tokens:      make(map[string]string),
	}
}

// Tags lists every tag of the reference's repository, following pagination
// links until the registry is done.
func (c *Client) Tags(ctx context.Context, imageRef string) ([]string, error) {
	tagsURL, err := manifest.BuildTagsURL(imageRef)
	if err != nil {
		return nil, err
	}

	var tags []string

	for tagsURL != "" {
		page, next, err := c.fetchTagsPage(ctx, imageRef, tagsURL)
		if err != nil {
			return nil, err
		}

		tags = append(tags, page...)
		tagsURL = next
	}

	logrus.WithFields(logrus.Fields{
		"image": imageRef,
		"count": len(tags),
	}).Debug("Listed remote tags")

	return tags, nil
}

// Digest returns the remote digest for the reference's own tag, normalized
// without the algorithm prefix. An empty digest with nil error means the
// registry does not expose one for this reference.
func (c *Client) Digest(ctx context.Context, imageRef string) (string, error) {
	return c.TagDigest(ctx, imageRef, "")
}

// TagDigest returns the remote digest for an arbitrary tag of the reference's
// repository. It prefers a HEAD request and falls back to GET for registries
// that do not answer HEAD with a digest header.
func (c *Client) TagDigest(ctx context.Context, imageRef, tag string) (string, error) {
	manifestURL, err := manifest.BuildManifestURL(imageRef, tag)
	if err != nil {
		return "", err
	}

	digest, retry, err := c.manifestDigest(ctx, http.MethodHead, manifestURL, imageRef)
	if err != nil || !retry {
		if digest != "" {
			logrus.WithFields(logrus.Fields{
				"image":  imageRef,
				"tag":    tag,
				"digest": digest,
			}).Debug("Fetched remote digest")
		}

		return digest, err
	}

	digest, _, err = c.manifestDigest(ctx, http.MethodGet, manifestURL, imageRef)
	if err != nil {
		return "", err
	}

	logrus.WithFields(logrus.Fields{
		"image":  imageRef,
		"tag":    tag,
		"digest": digest,
	}).Debug("Fetched remote digest via GET fallback")

	return digest, nil
}

// manifestDigest performs one manifest request, reporting whether a GET retry
// could still produce a digest.
func (c *Client) manifestDigest(ctx context.Context, method, manifestURL, imageRef string) (string, bool, error) {
	resp, err := c.do(ctx, method, manifestURL, imageRef, "application/vnd.oci.image.index.v1+json, application/vnd.docker.distribution.manifest.list.v2+json, application/vnd.docker.distribution.manifest.v2+json")
	if err != nil {
		return "", false, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// The tag is gone or was never pushed; a missing digest is an absent
		// signal, not a failure.
		return "", false, nil
	case resp.StatusCode == http.StatusMethodNotAllowed && method == http.MethodHead:
		return "", true, nil
	case resp.StatusCode != http.StatusOK:
		return "", false, fmt.Errorf("%w: %s for %s", errUnexpectedStatus, resp.Status, manifestURL)
	}

	digest := resp.Header.Get(ContentDigestHeader)
	if digest == "" {
		if method == http.MethodHead {
			return "", true, nil
		}

		return "", false, fmt.Errorf("%w: %s", errMissingDigestHeader, manifestURL)
	}

	return helpers.NormalizeDigest(digest), false, nil
}

// fetchTagsPage fetches one page of the tags list and extracts the next page
// URL from the Link header, empty when this was the last page.
func (c *Client) fetchTagsPage(ctx context.Context, imageRef, pageURL string) ([]string, string, error) {
	resp, err := c.do(ctx, http.MethodGet, pageURL, imageRef, "application/json")
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("%w: %s for %s", errUnexpectedStatus, resp.Status, pageURL)
	}

	var page tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, "", fmt.Errorf("failed to decode tags response: %w", err)
	}

	return page.Tags, nextPageURL(resp), nil
}

// do executes one authenticated registry request. Rate limiting and transport
// failures are wrapped as ErrRegistryUnavailable so the batch processor can
// abandon the attempt and retry later.
func (c *Client) do(ctx context.Context, method, requestURL, imageRef, accept string) (*http.Response, error) {
	token, err := c.token(ctx, imageRef)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if token != "" {
		req.Header.Set("Authorization", token)
	}

	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrRegistryUnavailable, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		resp.Body.Close()

		return nil, fmt.Errorf("%w: %s for %s", types.ErrRegistryUnavailable, resp.Status, requestURL)
	}

	return resp, nil
}

// token resolves the Authorization header value for the reference's
// repository, reusing a previously fetched token within the run.
func (c *Client) token(ctx context.Context, imageRef string) (string, error) {
	normalizedRef, err := reference.ParseNormalizedNamed(imageRef)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errFailedParseImageName, err)
	}

	key := normalizedRef.Name()
	if token, ok := c.tokens[key]; ok {
		return token, nil
	}

	token, err := auth.GetToken(ctx, c.httpClient, normalizedRef, c.credentials.EncodedAuth(imageRef))
	if err != nil {
		return "", err
	}

	c.tokens[key] = token

	return token, nil
}

// nextPageURL resolves the RFC 5988 Link header of a tags list response
// against the page that produced it.
func nextPageURL(resp *http.Response) string {
	link := resp.Header.Get("Link")
	if link == "" {
		return ""
	}

	target, _, _ := strings.Cut(link, ";")
	target = strings.Trim(strings.TrimSpace(target), "<>")

	if target == "" {
		return ""
	}

	base := resp.Request.URL
	if base == nil {
		return target
	}

	ref, err := base.Parse(target)
	if err != nil {
		logrus.WithError(err).WithField("link", link).Debug("Failed to resolve tags page link")

		return ""
	}

	return ref.String()
}
