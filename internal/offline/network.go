package offline

import (
	"context"
	"io"
	"net/url"
)

// Remote endpoints used by the offline layer.
const (
	EndpointScreeningSubmit    = "/v1/screening/submit"
	EndpointScreeningHistory   = "/v1/screening/history"
	EndpointScreeningQuestions = "/v1/screening/questions/"
	EndpointResources          = "/v1/resources"
	EndpointHelplines          = "/v1/helplines"
)

// API is the remote REST backend. Authentication is the implementation's concern.
type API interface {
	// Do sends a JSON request. body may be nil. When out is non-nil the
	// response body is decoded into it. Non-2xx responses and transport
	// failures are returned as errors.
	Do(ctx context.Context, method, path string, body, out any) error

	// Fetch downloads an absolute URL into w and returns the byte count.
	Fetch(ctx context.Context, rawURL string, w io.Writer) (int64, error)
}

// Connectivity reports whether the backend is reachable.
type Connectivity interface {
	IsOnline() bool

	// OnOnline registers fn to run on every offline-to-online transition.
	// The returned function unregisters it.
	OnOnline(fn func()) (cancel func())
}

// withQuery appends encoded query parameters to path.
func withQuery(path string, params url.Values) string {
	if len(params) == 0 {
		return path
	}
	return path + "?" + params.Encode()
}
