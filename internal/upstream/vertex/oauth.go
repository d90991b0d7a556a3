// Package vertex serves the Gemini and Claude dialects through Google
// Vertex AI: OAuth refresh-token credentials instead of api keys, and
// regional endpoints rotated per request.
package vertex

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/proapi/proapi/internal/httpclient"
)

const tokenEndpoint = "https://oauth2.googleapis.com/token"

// expiryMargin keeps a token from being handed out right before it lapses
// mid-request.
const expiryMargin = 120 * time.Second

// tokenSource exchanges a refresh token for short-lived access tokens and
// caches the result until close to expiry.
type tokenSource struct {
	clientID     string
	clientSecret string
	refreshToken string
	client       httpclient.HTTPClient

	mu     sync.Mutex
	token  string
	expiry time.Time
}

var (
	sourceMu sync.Mutex
	sources  = map[string]*tokenSource{}
)

// sourceFor returns the shared token source for a client id, so every entry
// of the same account reuses one cached token.
func sourceFor(clientID, clientSecret, refreshToken string, client httpclient.HTTPClient) *tokenSource {
	sourceMu.Lock()
	defer sourceMu.Unlock()

	if ts, ok := sources[clientID]; ok {
		return ts
	}
	ts := &tokenSource{
		clientID:     clientID,
		clientSecret: clientSecret,
		refreshToken: refreshToken,
		client:       client,
	}
	sources[clientID] = ts
	return ts
}

func (ts *tokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.token != "" && time.Now().Before(ts.expiry.Add(-expiryMargin)) {
		return ts.token, nil
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {ts.clientID},
		"client_secret": {ts.clientSecret},
		"refresh_token": {ts.refreshToken},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenEndpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := ts.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("oauth token exchange failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("oauth token exchange returned status %d", resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := decodeJSON(resp.Body, &body); err != nil {
		return "", fmt.Errorf("oauth token exchange: %w", err)
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("oauth token exchange returned no access token")
	}

	ts.token = body.AccessToken
	ts.expiry = time.Now().Add(time.Duration(body.ExpiresIn) * time.Second)
	return ts.token, nil
}
