package testsupport

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// FixturePath returns the path of a file under the package's testdata dir.
func FixturePath(name string) string {
	return filepath.Join("testdata", name)
}

// LoadFixture reads testdata/<name> or fails the test.
func LoadFixture(t testing.TB, name string) []byte {
	t.Helper()

	data, err := os.ReadFile(FixturePath(name))
	if err != nil {
		t.Fatalf("failed to load fixture %s: %v", name, err)
	}
	return data
}

// Response is a canned upstream reply.
type Response struct {
	Status int
	Body   []byte
	Header map[string]string
}

// XML builds a 200 response with an XML body.
func XML(body []byte) Response {
	return Response{Status: http.StatusOK, Body: body, Header: map[string]string{"Content-Type": "text/xml; charset=utf-8"}}
}

// Status builds an empty response with the given status.
func Status(code int) Response {
	return Response{Status: code}
}

// RecordedRequest is what Upstream saw for one call.
type RecordedRequest struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
}

// Upstream is an httptest server that replays queued responses per path
// and records every request. Once a path's queue is drained its last
// response is repeated; unknown paths get 404.
type Upstream struct {
	*httptest.Server

	mu       sync.Mutex
	queues   map[string][]Response
	last     map[string]Response
	requests []RecordedRequest
}

// NewUpstream starts an Upstream that is closed when the test ends.
func NewUpstream(t testing.TB) *Upstream {
	t.Helper()

	u := &Upstream{
		queues: map[string][]Response{},
		last:   map[string]Response{},
	}
	u.Server = httptest.NewServer(http.HandlerFunc(u.serve))
	t.Cleanup(u.Close)
	return u
}

// Enqueue appends responses for path.
func (u *Upstream) Enqueue(path string, responses ...Response) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.queues[path] = append(u.queues[path], responses...)
}

// Requests returns the recorded requests in arrival order.
func (u *Upstream) Requests() []RecordedRequest {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]RecordedRequest(nil), u.requests...)
}

func (u *Upstream) serve(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	u.requests = append(u.requests, RecordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Header: r.Header.Clone(),
	})

	resp, ok := u.last[r.URL.Path]
	if queue := u.queues[r.URL.Path]; len(queue) > 0 {
		resp, ok = queue[0], true
		u.queues[r.URL.Path] = queue[1:]
		u.last[r.URL.Path] = resp
	}
	u.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	for k, v := range resp.Header {
		w.Header().Set(k, v)
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(resp.Body)
}
