package vertex

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proapi/proapi/internal/config"
)

func TestRotatorCycles(t *testing.T) {
	r := newRotator([]string{"a", "b", "c"})
	got := []string{r.next(), r.next(), r.next(), r.next()}
	assert.Equal(t, []string{"a", "b", "c", "a"}, got)
}

func TestCredentialsRequired(t *testing.T) {
	_, err := NewGemini(config.ProviderEntry{Name: "gcp", Extra: map[string]string{
		"project_id": "p", "client_id": "c",
	}}, http.DefaultClient)
	assert.Error(t, err)

	_, err = NewClaude(config.ProviderEntry{Name: "gcp", Extra: map[string]string{
		"project_id": "p", "client_id": "c", "client_secret": "s", "refresh_token": "r",
	}}, http.DefaultClient)
	assert.NoError(t, err)
}

// fakeTransport answers the oauth endpoint and counts exchanges.
type fakeTransport struct {
	exchanges int
}

func (f *fakeTransport) Do(req *http.Request) (*http.Response, error) {
	if req.URL.Host != "oauth2.googleapis.com" {
		return nil, fmt.Errorf("unexpected host %s", req.URL.Host)
	}
	body, _ := io.ReadAll(req.Body)
	if !strings.Contains(string(body), "grant_type=refresh_token") {
		return nil, fmt.Errorf("unexpected grant: %s", body)
	}
	f.exchanges++
	return &http.Response{
		StatusCode: http.StatusOK,
		Body: io.NopCloser(strings.NewReader(
			fmt.Sprintf(`{"access_token":"tok-%d","expires_in":3600}`, f.exchanges))),
		Header: http.Header{},
	}, nil
}

func TestTokenSourceCachesUntilExpiry(t *testing.T) {
	ft := &fakeTransport{}
	ts := &tokenSource{
		clientID: "cid", clientSecret: "sec", refreshToken: "ref",
		client: ft,
	}

	tok, err := ts.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)

	tok, err = ts.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok, "second call reuses the cached token")
	assert.Equal(t, 1, ft.exchanges)
}

func TestSourceForSharesPerClientID(t *testing.T) {
	ft := &fakeTransport{}
	a := sourceFor("client-shared", "s", "r", ft)
	b := sourceFor("client-shared", "s", "r", ft)
	assert.Same(t, a, b)
}

func TestVertexURLs(t *testing.T) {
	g := &GeminiProvider{project: "proj"}
	assert.Equal(t,
		"https://us-central1-aiplatform.googleapis.com/v1/projects/proj/locations/us-central1/publishers/google/models/gemini-1.5-pro:generateContent",
		g.url("us-central1", "gemini-1.5-pro", "generateContent"))

	c := &ClaudeProvider{project: "proj"}
	assert.Equal(t,
		"https://us-east5-aiplatform.googleapis.com/v1/projects/proj/locations/us-east5/publishers/anthropic/models/claude-3-5-sonnet@20240620:streamRawPredict",
		c.url("us-east5", "claude-3-5-sonnet@20240620", "streamRawPredict"))
}
