package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Problem is the structured error shape surfaced to clients. It follows
// RFC 9457 field naming at the root, and every instance also renders the
// legacy {code, message, detail, error} envelope via Envelope().
type Problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`

	Extensions map[string]interface{} `json:"-"`

	// Log carries the internal error for server-side logging only.
	Log error `json:"-"`
}

func (p *Problem) Error() string {
	return fmt.Sprintf("[%d] %s: %s", p.Status, p.Title, p.Detail)
}

func (p *Problem) MarshalJSON() ([]byte, error) {
	type alias Problem

	data := make(map[string]interface{})
	for k, v := range p.Extensions {
		data[k] = v
	}

	stdJSON, _ := json.Marshal(alias(*p))
	_ = json.Unmarshal(stdJSON, &data)

	return json.Marshal(data)
}

// Envelope is the client-facing error body used on the completion
// endpoints: {code, message, detail, error}.
type Envelope struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Detail  interface{}    `json:"detail,omitempty"`
	Error   *ErrorResponse `json:"error"`
}

func (p *Problem) Envelope() *Envelope {
	return &Envelope{
		Code:    p.Status,
		Message: p.Title,
		Detail:  p.Detail,
		Error:   CatalogError(p.Status),
	}
}

type ProblemOption func(*Problem)

func NewError(status int, title, detail string, opts ...ProblemOption) *Problem {
	p := &Problem{
		Type:       "about:blank",
		Title:      title,
		Status:     status,
		Detail:     detail,
		Extensions: make(map[string]interface{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithExtension adds a custom key-value pair to the response.
func WithExtension(key string, value interface{}) ProblemOption {
	return func(p *Problem) {
		p.Extensions[key] = value
	}
}

// WithLog attaches an internal error for server-side logging.
func WithLog(err error) ProblemOption {
	return func(p *Problem) {
		p.Log = err
	}
}

// --- taxonomy constructors ---

// UnauthorizedError rejects a missing or unknown token.
func UnauthorizedError(detail string) *Problem {
	return NewError(http.StatusUnauthorized, "Unauthorized", detail)
}

// ForbiddenError rejects a token that lacks permission for a model.
func ForbiddenError(detail string) *Problem {
	return NewError(http.StatusForbidden, "Forbidden", detail)
}

// NoChannelError reports a model with no usable providers.
func NoChannelError(model string) *Problem {
	return NewError(http.StatusInternalServerError, "No Channel",
		fmt.Sprintf("model %q has no available channel", model))
}

// ConfigError reports a bad or missing manifest.
func ConfigError(detail string, err error) *Problem {
	return NewError(http.StatusInternalServerError, "Config Error", detail, WithLog(err))
}

// ValidationError wraps field-level binding failures.
func ValidationError(fields map[string]string) *Problem {
	return NewError(http.StatusBadRequest, "Validation Error",
		"One or more fields failed validation",
		WithExtension("errors", fields))
}

// UpstreamProblem reports a non-2xx upstream answer. Only the domain of
// the upstream URL is included so embedded credentials never leak.
func UpstreamProblem(status int, domain string, body string) *Problem {
	return NewError(status, "Upstream Provider Error", body,
		WithExtension("upstream_domain", domain),
		WithExtension("upstream_status", status))
}

// InternalError is the catch-all 500.
func InternalError(detail string, err error) *Problem {
	return NewError(http.StatusInternalServerError, "Internal Server Error", detail, WithLog(err))
}

// CatalogError returns the static per-status error descriptor used to
// fill the `error` member of the client envelope.
func CatalogError(status int) *ErrorResponse {
	catalog := map[int]ErrorResponse{
		http.StatusUnauthorized: {
			Message: "Invalid authentication. Ensure the correct API key and requesting organization are being used.",
			Type:    "authentication_error",
		},
		http.StatusForbidden: {
			Message: "Country, region, or territory not supported. Please see the documentation for more information.",
			Type:    "access_forbidden",
		},
		http.StatusNotFound: {
			Message: "Incorrect API key provided or you must be a member of an organization to use the API.",
			Type:    "not_found",
		},
		http.StatusTooManyRequests: {
			Message: "Rate limit reached or quota exceeded. Please check your plan and billing details.",
			Type:    "rate_limit_error",
		},
		http.StatusInternalServerError: {
			Message: "The server had an error while processing your request.",
			Type:    "server_error",
		},
		http.StatusServiceUnavailable: {
			Message: "The engine is currently overloaded. Please try again later.",
			Type:    "server_overload",
		},
	}

	e, ok := catalog[status]
	if !ok {
		e = ErrorResponse{Message: "An unknown error occurred.", Type: "unknown_error"}
	}
	return &e
}
