package client

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock"
	"github.com/juju/clock/testclock"
)

// fakeAPI serves canned responses, keyed by "METHOD /v1/path", and counts the hits.
type fakeAPI struct {
	*httptest.Server
	mu       sync.Mutex
	hits     map[string]int
	bodies   map[string][]byte // last request body
	auth     map[string]string // last Authorization header
	handlers map[string]http.HandlerFunc
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	api := &fakeAPI{
		hits:     make(map[string]int),
		bodies:   make(map[string][]byte),
		auth:     make(map[string]string),
		handlers: make(map[string]http.HandlerFunc),
	}
	api.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		body, _ := io.ReadAll(r.Body)

		api.mu.Lock()
		api.hits[key]++
		api.bodies[key] = body
		api.auth[key] = r.Header.Get("Authorization")
		h, ok := api.handlers[key]
		api.mu.Unlock()

		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		h(w, r)
	}))
	t.Cleanup(api.Close)
	return api
}

func (api *fakeAPI) handle(method, path string, h http.HandlerFunc) {
	api.mu.Lock()
	defer api.mu.Unlock()
	api.handlers[method+" "+path] = h
}

// respond always answers code & v.
func (api *fakeAPI) respond(method, path string, code int, v interface{}) {
	api.handle(method, path, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, code, v)
	})
}

func (api *fakeAPI) hitCount(method, path string) int {
	api.mu.Lock()
	defer api.mu.Unlock()
	return api.hits[method+" "+path]
}

func (api *fakeAPI) lastBody(t *testing.T, method, path string, v interface{}) {
	t.Helper()
	api.mu.Lock()
	body := api.bodies[method+" "+path]
	api.mu.Unlock()
	if err := json.Unmarshal(body, v); err != nil {
		t.Fatalf("lastBody(%s %s) failed: %v", method, path, err)
	}
}

func (api *fakeAPI) lastAuth(method, path string) string {
	api.mu.Lock()
	defer api.mu.Unlock()
	return api.auth[method+" "+path]
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(api *fakeAPI, clk clock.Clock) *Client {
	if clk == nil {
		clk = clock.WallClock
	}
	return New(api.URL, WithClock(clk), WithRetryDelay(time.Millisecond))
}

func newTestClock() *testclock.Clock {
	return testclock.NewClock(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))
}

// login sets a session without calling the API.
func login(c *Client, username string) {
	c.Session.set(username, "token-"+username)
}
