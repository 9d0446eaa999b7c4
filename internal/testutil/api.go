package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// ErrNetwork is the default failure returned by FakeAPI for unscripted calls.
var ErrNetwork = errors.New("network unreachable")

// APICall records one request made through FakeAPI.
type APICall struct {
	Method string
	Path   string
	Body   json.RawMessage
}

// Handler answers a scripted request. The returned value is JSON-encoded and
// decoded into the caller's out parameter.
type Handler func(body json.RawMessage) (any, error)

// FakeAPI is a scripted offline.API. Routes match "METHOD path" exactly, or
// "METHOD prefix*" for any path with that prefix. Safe for concurrent use.
type FakeAPI struct {
	mu     sync.Mutex
	routes map[string]Handler
	media  map[string][]byte
	calls  []APICall
	down   bool
}

func NewFakeAPI() *FakeAPI {
	return &FakeAPI{
		routes: make(map[string]Handler),
		media:  make(map[string][]byte),
	}
}

// Handle scripts route with h.
func (f *FakeAPI) Handle(route string, h Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[route] = h
}

// Respond scripts route to always return v.
func (f *FakeAPI) Respond(route string, v any) {
	f.Handle(route, func(json.RawMessage) (any, error) { return v, nil })
}

// Fail scripts route to always return err.
func (f *FakeAPI) Fail(route string, err error) {
	f.Handle(route, func(json.RawMessage) (any, error) { return nil, err })
}

// SetMedia makes Fetch(url) return data. A nil data removes it.
func (f *FakeAPI) SetMedia(url string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if data == nil {
		delete(f.media, url)
		return
	}
	f.media[url] = data
}

// SetDown makes every request fail with ErrNetwork while down is true.
func (f *FakeAPI) SetDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

// Calls returns the requests recorded so far.
func (f *FakeAPI) Calls() []APICall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]APICall, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsTo returns the recorded requests whose "METHOD path" starts with prefix.
func (f *FakeAPI) CallsTo(prefix string) []APICall {
	var out []APICall
	for _, c := range f.Calls() {
		if strings.HasPrefix(c.Method+" "+c.Path, prefix) {
			out = append(out, c)
		}
	}
	return out
}

func (f *FakeAPI) handler(key string) Handler {
	if h, ok := f.routes[key]; ok {
		return h
	}
	var best string
	for route := range f.routes {
		prefix, ok := strings.CutSuffix(route, "*")
		if ok && strings.HasPrefix(key, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return nil
	}
	return f.routes[best+"*"]
}

func (f *FakeAPI) Do(ctx context.Context, method, path string, body, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var raw json.RawMessage
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		raw = b
	}

	f.mu.Lock()
	f.calls = append(f.calls, APICall{Method: method, Path: path, Body: raw})
	down := f.down
	h := f.handler(method + " " + path)
	f.mu.Unlock()

	if down || h == nil {
		return ErrNetwork
	}

	v, err := h(raw)
	if err != nil {
		return err
	}
	if out == nil || v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}
	return json.Unmarshal(b, out)
}

func (f *FakeAPI) Fetch(ctx context.Context, rawURL string, w io.Writer) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	f.mu.Lock()
	f.calls = append(f.calls, APICall{Method: "FETCH", Path: rawURL})
	data, ok := f.media[rawURL]
	down := f.down
	f.mu.Unlock()

	if down || !ok {
		return 0, ErrNetwork
	}
	n, err := w.Write(data)
	return int64(n), err
}
