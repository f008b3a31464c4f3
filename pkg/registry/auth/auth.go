// Package auth handles authentication with container registries: probing the
// registry's challenge endpoint and turning its instructions into a basic or
// bearer Authorization header for subsequent tag and manifest requests.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/distribution/reference"
	"github.com/sirupsen/logrus"

	"github.com/updrift/updrift/pkg/registry/helpers"
)

// ChallengeHeader is the HTTP header carrying challenge instructions.
const ChallengeHeader = "WWW-Authenticate"

// Errors for registry authentication failures.
var (
	// errNoCredentials indicates the registry demands basic auth but no
	// credentials are available.
	errNoCredentials = errors.New("no credentials available")
	// errUnsupportedChallenge indicates a challenge type other than basic or
	// bearer.
	errUnsupportedChallenge = errors.New("unsupported challenge type from registry")
	// errInvalidChallengeHeader indicates a bearer challenge missing realm or
	// service values.
	errInvalidChallengeHeader = errors.New("challenge header did not include all values needed to construct an auth url")
)

// tokenResponse is the JSON body returned by a bearer token endpoint.
type tokenResponse struct {
	Token string `json:"token"`
}

// GetToken fetches an Authorization header value for the registry hosting the
// image. It returns an empty string when the registry does not require
// authentication.
func GetToken(ctx context.Context, client *http.Client, imageRef reference.Named, registryAuth string) (string, error) {
	challengeURL := GetChallengeURL(imageRef)
	logrus.WithField("url", challengeURL.String()).Debug("Built challenge URL")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, challengeURL.String(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create challenge request: %w", err)
	}

	req.Header.Set("Accept", "*/*")

	res, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute challenge request: %w", err)
	}
	defer res.Body.Close()

	header := res.Header.Get(ChallengeHeader)

	logrus.WithFields(logrus.Fields{
		"status": res.Status,
		"header": header,
	}).Debug("Got response to challenge request")

	if res.StatusCode == http.StatusOK {
		return "", nil // Registry is open, no token needed.
	}

	challenge := strings.ToLower(header)

	switch {
	case strings.HasPrefix(challenge, "basic"):
		if registryAuth == "" {
			return "", errNoCredentials
		}

		return "Basic " + registryAuth, nil
	case strings.HasPrefix(challenge, "bearer"):
		return getBearerHeader(ctx, client, challenge, imageRef, registryAuth)
	default:
		return "", errUnsupportedChallenge
	}
}

// getBearerHeader fetches a bearer token from the endpoint named in the
// challenge, passing along basic credentials when available.
func getBearerHeader(ctx context.Context, client *http.Client, challenge string, imageRef reference.Named, registryAuth string) (string, error) {
	authURL, err := GetAuthURL(challenge, imageRef)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, authURL.String(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}

	if registryAuth != "" {
		logrus.Debug("Credentials found")
		req.Header.Add("Authorization", "Basic "+registryAuth)
	} else {
		logrus.Debug("No credentials found")
	}

	res, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute token request: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}

	token := tokenResponse{}
	if err := json.Unmarshal(body, &token); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}

	return "Bearer " + token.Token, nil
}

// GetAuthURL builds the token endpoint URL from a bearer challenge header,
// adding the service and pull scope parameters for the image's repository.
func GetAuthURL(challenge string, imageRef reference.Named) (*url.URL, error) {
	raw := strings.TrimPrefix(strings.ToLower(challenge), "bearer")
	values := make(map[string]string)

	for _, pair := range strings.Split(raw, ",") {
		if key, val, ok := strings.Cut(strings.TrimSpace(pair), "="); ok {
			values[key] = strings.Trim(val, `"`)
		}
	}

	if values["realm"] == "" || values["service"] == "" {
		return nil, errInvalidChallengeHeader
	}

	authURL, err := url.Parse(values["realm"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse challenge realm %q: %w", values["realm"], err)
	}

	scope := fmt.Sprintf("repository:%s:pull", reference.Path(imageRef))
	logrus.WithFields(logrus.Fields{
		"scope": scope,
		"image": imageRef.Name(),
	}).Debug("Setting scope for auth token")

	q := authURL.Query()
	q.Add("service", values["service"])
	q.Add("scope", scope)
	authURL.RawQuery = q.Encode()

	return authURL, nil
}

// GetChallengeURL builds the challenge endpoint URL for the registry hosting
// the image.
func GetChallengeURL(imageRef reference.Named) url.URL {
	host, _ := helpers.GetRegistryAddress(imageRef.Name())

	return url.URL{
		Scheme: "https",
		Host:   host,
		Path:   "/v2/",
	}
}
