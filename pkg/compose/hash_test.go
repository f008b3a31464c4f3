package compose

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceHashes(t *testing.T) {
	calls := 0

	hasher := &Hasher{
		run: func(_ context.Context, workingDir string, name string, args ...string) ([]byte, error) {
			calls++

			assert.Equal(t, "/srv/app", workingDir)
			assert.Equal(t, "docker", name)
			assert.Equal(t, []string{"compose", "-f", "docker-compose.yml", "-f", "override.yml", "config", "--hash=*"}, args)

			return []byte("web abc123\ndb def456\n"), nil
		},
		cache: make(map[string]map[string]string),
	}

	files := []string{"docker-compose.yml", "override.yml"}

	hashes, err := hasher.ServiceHashes(t.Context(), "/srv/app", files)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"web": "abc123", "db": "def456"}, hashes)

	// Second lookup for the same file set is served from cache.
	hashes, err = hasher.ServiceHashes(t.Context(), "/srv/app", files)
	require.NoError(t, err)
	assert.Equal(t, "abc123", hashes["web"])
	assert.Equal(t, 1, calls)

	// A different file set misses the cache.
	_, err = hasher.ServiceHashes(t.Context(), "/srv/app", []string{"docker-compose.yml"})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestServiceHashesCommandFailure(t *testing.T) {
	hasher := &Hasher{
		run: func(context.Context, string, string, ...string) ([]byte, error) {
			return nil, errors.New("exit status 1")
		},
		cache: make(map[string]map[string]string),
	}

	_, err := hasher.ServiceHashes(t.Context(), "/srv/app", []string{"docker-compose.yml"})
	require.ErrorIs(t, err, errHashCommandFailed)
}

func TestConfigFiles(t *testing.T) {
	labels := map[string]string{
		ConfigFilesLabel: "docker-compose.yml, override.yml",
	}

	assert.Equal(t, []string{"docker-compose.yml", "override.yml"}, ConfigFiles(labels))
	assert.Nil(t, ConfigFiles(nil))
	assert.Nil(t, ConfigFiles(map[string]string{ConfigFilesLabel: ""}))
}

func TestIsManaged(t *testing.T) {
	assert.True(t, IsManaged(map[string]string{ProjectLabel: "blog"}))
	assert.False(t, IsManaged(map[string]string{}))
}
