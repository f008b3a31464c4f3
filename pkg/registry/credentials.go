// Package registry implements the remote side of the inspection pipeline: a
// small Docker Registry v2 API client that lists tags and fetches manifest
// digests, plus credential resolution from the environment and the Docker CLI
// config file.
package registry

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	dockerCliConfig "github.com/docker/cli/cli/config"
	dockerConfigConfigfile "github.com/docker/cli/cli/config/configfile"
	dockerConfigCredentials "github.com/docker/cli/cli/config/credentials"

	"github.com/updrift/updrift/pkg/registry/helpers"
)

// errFailedLoadDockerConfig indicates the Docker CLI config file could not be
// loaded or parsed. This is a configuration error: the caller aborts before
// any inspection starts.
var errFailedLoadDockerConfig = errors.New("failed to load Docker config")

// CredentialStore resolves registry credentials for image references,
// checking the REPO_USER and REPO_PASS environment variables first and
// falling back to the Docker CLI config file.
type CredentialStore struct {
	configFile *dockerConfigConfigfile.ConfigFile
}

// LoadCredentials opens the Docker CLI config in configDir (the standard
// location when empty). A malformed config file is fatal here, before any
// unit has been inspected.
func LoadCredentials(configDir string) (*CredentialStore, error) {
	if configDir == "" {
		configDir = dockerCliConfig.Dir()
	}

	configFile, err := dockerCliConfig.Load(configDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedLoadDockerConfig, err)
	}

	logrus.WithField("config_file", configFile.Filename).Debug("Loaded Docker config")

	return &CredentialStore{configFile: configFile}, nil
}

// EncodedAuth returns base64("username:password") for the registry hosting
// the image, or an empty string when no credentials are known. Missing
// credentials are not an error; most registries allow anonymous pulls.
func (s *CredentialStore) EncodedAuth(imageRef string) string {
	if username, password := os.Getenv("REPO_USER"), os.Getenv("REPO_PASS"); username != "" && password != "" {
		logrus.WithField("username", username).Debug("Loaded auth credentials from environment")

		return encodeBasicAuth(username, password)
	}

	server, err := helpers.GetRegistryAddress(imageRef)
	if err != nil {
		logrus.WithError(err).WithField("image_ref", imageRef).Debug("Failed to get registry address")

		return ""
	}

	authConfig, _ := s.credentialsStore(server).Get(server)
	if authConfig.Username == "" || authConfig.Password == "" {
		logrus.WithFields(logrus.Fields{
			"server":      server,
			"config_file": s.configFile.Filename,
		}).Debug("No credentials found in config")

		return ""
	}

	logrus.WithFields(logrus.Fields{
		"username": authConfig.Username,
		"server":   server,
	}).Debug("Loaded auth credentials from config")

	return encodeBasicAuth(authConfig.Username, authConfig.Password)
}

// credentialsStore picks the native helper-backed store when the config names
// one, a plain file store otherwise.
func (s *CredentialStore) credentialsStore(server string) dockerConfigCredentials.Store {
	if helper := s.configFile.CredentialHelpers[server]; helper != "" {
		return dockerConfigCredentials.NewNativeStore(s.configFile, helper)
	}

	if s.configFile.CredentialsStore != "" {
		return dockerConfigCredentials.NewNativeStore(s.configFile, s.configFile.CredentialsStore)
	}

	return dockerConfigCredentials.NewFileStore(s.configFile)
}

func encodeBasicAuth(username, password string) string {
	return base64.StdEncoding.EncodeToString(fmt.Appendf(nil, "%s:%s", username, password))
}
