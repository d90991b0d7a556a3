package httpclient

import (
	"fmt"
	"net/url"
)

// UpstreamError is a non-2xx answer from an upstream service. Only the host
// is retained from the request URL so provider keys embedded in query
// strings never reach logs or client responses.
type UpstreamError struct {
	StatusCode int
	Body       []byte
	Domain     string
}

func NewUpstreamError(status int, rawURL string, body []byte) *UpstreamError {
	domain := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		domain = u.Host
	}
	return &UpstreamError{StatusCode: status, Body: body, Domain: domain}
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error: status %d from %s", e.StatusCode, e.Domain)
}
