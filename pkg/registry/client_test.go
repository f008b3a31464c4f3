package registry

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/updrift/updrift/pkg/types"
)

// rewriteTransport redirects every request to the test server regardless of
// the host the client derived from the image reference.
type rewriteTransport struct {
	target *url.URL
}

func (t rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = t.target.Scheme
	req.URL.Host = t.target.Host

	return http.DefaultTransport.RoundTrip(req)
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	target, err := url.Parse(server.URL)
	require.NoError(t, err)

	credentials, err := LoadCredentials(t.TempDir())
	require.NoError(t, err)

	client := NewClient(credentials)
	client.httpClient = &http.Client{Transport: rewriteTransport{target: target}}

	return client
}

func TestTags(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/v2/library/app/tags/list", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"library/app","tags":["1.2.0","1.3.0","latest"]}`))
	})

	client := newTestClient(t, mux)

	tags, err := client.Tags(t.Context(), "app:1.2.0")
	require.NoError(t, err)
	assert.Equal(t, []string{"1.2.0", "1.3.0", "latest"}, tags)
}

func TestTagsPagination(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/v2/library/app/tags/list", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if r.URL.Query().Get("last") == "" {
			w.Header().Set("Link", `</v2/library/app/tags/list?last=1.1>; rel="next"`)
			_, _ = w.Write([]byte(`{"name":"library/app","tags":["1.0","1.1"]}`))

			return
		}

		_, _ = w.Write([]byte(`{"name":"library/app","tags":["1.2"]}`))
	})

	client := newTestClient(t, mux)

	tags, err := client.Tags(t.Context(), "app:1.0")
	require.NoError(t, err)
	assert.Equal(t, []string{"1.0", "1.1", "1.2"}, tags)
}

func TestTagDigest(t *testing.T) {
	const digest = "sha256:d68e1e532088964195ad3a0a71526bc2f11a78de0def85629beb75e2265f0547"

	mux := http.NewServeMux()
	mux.HandleFunc("/v2/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/v2/library/app/manifests/1.3.0", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodHead, r.Method)
		w.Header().Set(ContentDigestHeader, digest)
		w.WriteHeader(http.StatusOK)
	})

	client := newTestClient(t, mux)

	got, err := client.TagDigest(t.Context(), "app:1.2.0", "1.3.0")
	require.NoError(t, err)
	assert.Equal(t, "d68e1e532088964195ad3a0a71526bc2f11a78de0def85629beb75e2265f0547", got)
}

func TestDigestUsesReferenceTag(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/v2/library/app/manifests/2.0", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(ContentDigestHeader, "sha256:abc123")
		w.WriteHeader(http.StatusOK)
	})

	client := newTestClient(t, mux)

	got, err := client.Digest(t.Context(), "app:2.0")
	require.NoError(t, err)
	assert.Equal(t, "abc123", got)
}

func TestTagDigestGetFallback(t *testing.T) {
	const digest = "sha256:abc123"

	mux := http.NewServeMux()
	mux.HandleFunc("/v2/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/v2/library/app/manifests/1.3.0", func(w http.ResponseWriter, r *http.Request) {
		// No digest header on HEAD; only the GET retry carries one.
		if r.Method == http.MethodGet {
			w.Header().Set(ContentDigestHeader, digest)
		}

		w.WriteHeader(http.StatusOK)
	})

	client := newTestClient(t, mux)

	got, err := client.TagDigest(t.Context(), "app:1.2.0", "1.3.0")
	require.NoError(t, err)
	assert.Equal(t, "abc123", got)
}

func TestMissingManifestIsAbsent(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/v2/library/app/manifests/9.9.9", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	client := newTestClient(t, mux)

	got, err := client.TagDigest(t.Context(), "app:1.0", "9.9.9")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRateLimitIsRegistryUnavailable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/v2/library/app/tags/list", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	client := newTestClient(t, mux)

	_, err := client.Tags(t.Context(), "app:1.0")
	require.ErrorIs(t, err, types.ErrRegistryUnavailable)
}
