package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"taskline/internal/config"
	"taskline/internal/engine"
	"taskline/internal/events"
	"taskline/internal/logger"
	"taskline/internal/store"
	"taskline/internal/tools"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, mutate ...func(*Config)) (*testServer, func()) {
	t.Helper()
	e := engine.New(store.NewDocuments(store.NewMemory()), events.Writer{}, logger.Discard())
	reg, err := tools.NewRegistry(tools.Static(e))
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	cfg := Config{Registry: reg, BasePath: "/v0", CORSOrigin: "*", Logger: logger.Discard()}
	for _, m := range mutate {
		m(&cfg)
	}
	handler, err := New(cfg)
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{Timeout: 10 * time.Second},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func decodeError(t *testing.T, data []byte) apiError {
	t.Helper()
	var body apiError
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("unmarshal error body %s: %v", string(data), err)
	}
	return body
}

func TestHealth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
	if !strings.Contains(string(data), `"ok"`) {
		t.Fatalf("unexpected health body: %s", string(data))
	}
	if res.Header.Get("X-Request-Id") == "" {
		t.Fatalf("missing request id header")
	}
}

func TestListTools(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/tools", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var list ToolListResponse
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(list.Tools) != 10 {
		t.Fatalf("expected 10 tools, got %d", len(list.Tools))
	}
	if list.Tools[0].Name != tools.RequestPlanning {
		t.Fatalf("expected request_planning first, got %s", list.Tools[0].Name)
	}
	if list.Tools[0].InputSchema["type"] != "object" {
		t.Fatalf("unexpected schema: %v", list.Tools[0].InputSchema)
	}
}

func TestToolLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	call := func(name string, params any) (*http.Response, []byte) {
		return doJSON(t, client, http.MethodPost, srv.URL+"/v0/tools/"+name, params, nil)
	}

	res, data := call(tools.RequestPlanning, map[string]any{
		"originalRequest": "Fix login",
		"tasks": []map[string]string{
			{"title": "Reproduce", "description": "Find the failing path"},
		},
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("plan status %d: %s", res.StatusCode, string(data))
	}
	var plan engine.PlanResult
	if err := json.Unmarshal(data, &plan); err != nil {
		t.Fatalf("unmarshal plan: %v", err)
	}
	if plan.RequestID != "req-1" {
		t.Fatalf("expected req-1, got %s", plan.RequestID)
	}

	res, data = call(tools.ApproveRequestCompletion, map[string]any{"requestId": "req-1"})
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("early approval status %d: %s", res.StatusCode, string(data))
	}
	if body := decodeError(t, data); body.Code != "invalid_state" {
		t.Fatalf("expected invalid_state, got %+v", body)
	}

	res, data = call(tools.MarkTaskDone, map[string]any{"requestId": "req-1", "taskId": "task-1"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("done status %d: %s", res.StatusCode, string(data))
	}
	res, data = call(tools.ApproveTaskCompletion, map[string]any{"requestId": "req-1", "taskId": "task-1"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("approve status %d: %s", res.StatusCode, string(data))
	}
	res, data = call(tools.ApproveRequestCompletion, map[string]any{"requestId": "req-1"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete status %d: %s", res.StatusCode, string(data))
	}
	var done engine.Result
	if err := json.Unmarshal(data, &done); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if !strings.HasPrefix(done.Message, "Request completion approved. All done!") {
		t.Fatalf("unexpected message: %s", done.Message)
	}

	res, data = call(tools.ListRequests, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var list engine.RequestListResult
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(list.Requests) != 1 || !list.Requests[0].Completed {
		t.Fatalf("unexpected listing: %+v", list.Requests)
	}
}

func TestToolErrorMapping(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	cases := []struct {
		name   string
		tool   string
		body   any
		status int
		code   string
	}{
		{"unknown tool", "explode", map[string]any{}, http.StatusNotFound, "unknown_tool"},
		{"missing param", tools.GetNextTask, map[string]any{}, http.StatusBadRequest, "invalid_parameters"},
		{"extra param", tools.GetNextTask, map[string]any{"requestId": "req-1", "x": 1}, http.StatusBadRequest, "invalid_parameters"},
		{"unknown request", tools.GetNextTask, map[string]any{"requestId": "req-42"}, http.StatusNotFound, "not_found"},
		{"unknown task", tools.OpenTaskDetails, map[string]any{"taskId": "task-42"}, http.StatusNotFound, "not_found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tools/"+tc.tool, tc.body, nil)
			if res.StatusCode != tc.status {
				t.Fatalf("status %d, want %d: %s", res.StatusCode, tc.status, string(data))
			}
			body := decodeError(t, data)
			if body.Code != tc.code {
				t.Fatalf("code %q, want %q (%s)", body.Code, tc.code, body.Message)
			}
			if body.Message == "" {
				t.Fatalf("empty error message")
			}
		})
	}
}

func TestLegacyRoutes(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/list-tools", map[string]any{"method": "tools/list"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list-tools status %d: %s", res.StatusCode, string(data))
	}
	if res.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header")
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/call-tool", map[string]any{
		"method": "tools/call",
		"params": map[string]any{
			"name": tools.RequestPlanning,
			"arguments": map[string]any{
				"originalRequest": "Legacy",
				"tasks":           []map[string]string{{"title": "A", "description": "a"}},
			},
		},
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("call-tool status %d: %s", res.StatusCode, string(data))
	}
	var plan engine.PlanResult
	if err := json.Unmarshal(data, &plan); err != nil {
		t.Fatalf("unmarshal plan: %v", err)
	}
	if plan.RequestID != "req-1" {
		t.Fatalf("expected req-1, got %s", plan.RequestID)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/call-tool", map[string]any{
		"params": map[string]any{"name": "nope"},
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("legacy unknown tool status %d: %s", res.StatusCode, string(data))
	}
	if body := decodeError(t, data); body.Code != "unknown_tool" {
		t.Fatalf("unexpected legacy error: %+v", body)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/call-tool", "not json", nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("legacy bad body status %d: %s", res.StatusCode, string(data))
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, _ := doJSON(t, srv.Client(), http.MethodOptions, srv.URL+"/call-tool", nil, nil)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("preflight status %d", res.StatusCode)
	}
	if !strings.Contains(res.Header.Get("Access-Control-Allow-Methods"), "POST") {
		t.Fatalf("missing allow-methods header")
	}
}

func TestOpenAPISpec(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/openapi.json", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("openapi status %d", res.StatusCode)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal openapi: %v", err)
	}
	paths, _ := doc["paths"].(map[string]any)
	if _, ok := paths["/v0/tools/{name}"]; !ok {
		t.Fatalf("tool call path missing from openapi document: %v", paths)
	}
}

func signToken(t *testing.T, secret, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestJWTAuth(t *testing.T) {
	const secret = "test-secret"
	srv, cleanup := newTestServer(t, func(c *Config) { c.Auth = AuthConfig{JWTSecret: secret} })
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health should be public, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tools", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d: %s", res.StatusCode, string(data))
	}
	if body := decodeError(t, data); body.Code != "unauthorized" {
		t.Fatalf("unexpected auth error: %+v", body)
	}

	bad := signToken(t, "other-secret", "alice")
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tools", nil, map[string]string{"Authorization": "Bearer " + bad})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong key, got %d", res.StatusCode)
	}

	good := signToken(t, secret, "alice")
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tools", nil, map[string]string{"Authorization": "Bearer " + good})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d: %s", res.StatusCode, string(data))
	}

	res, _ = doJSON(t, client, http.MethodPost, srv.URL+"/list-tools", map[string]any{}, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("legacy routes must require auth, got %d", res.StatusCode)
	}
}

func TestAuthenticateJWTRequiresSubject(t *testing.T) {
	token := signToken(t, "s", "")
	if _, err := authenticateJWT(token, "s"); err == nil {
		t.Fatalf("expected error for token without subject")
	}
	p, err := authenticateJWT(signToken(t, "s", "bob"), "s")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if p.Subject != "bob" || p.Source != "jwt" {
		t.Fatalf("unexpected principal: %+v", p)
	}
}

func TestRequestBodyLimit(t *testing.T) {
	srv, cleanup := newTestServer(t, func(c *Config) { c.MaxBodyBytes = 64 })
	defer cleanup()

	big := `{"originalRequest": "` + strings.Repeat("x", 256) + `", "tasks": []}`
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tools/request_planning", big, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized body, got %d: %s", res.StatusCode, string(data))
	}
	if body := decodeError(t, data); body.Code != "invalid_parameters" {
		t.Fatalf("unexpected error body: %+v", body)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tools/list_requests", `{}`, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("small body rejected: %d: %s", res.StatusCode, string(data))
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) records(t *testing.T) []map[string]any {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(b.buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("decode log line %q: %v", line, err)
		}
		out = append(out, rec)
	}
	return out
}

func TestRequestIDReachesEngineLogs(t *testing.T) {
	var buf syncBuffer
	log := logger.NewWithWriter(&buf, config.Logging{Level: "debug", Format: "json"})
	e := engine.New(store.NewDocuments(store.NewMemory()), events.Writer{}, log)
	reg, err := tools.NewRegistry(tools.Static(e))
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	srv, cleanup := newTestServer(t, func(c *Config) {
		c.Registry = reg
		c.Logger = log
	})
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tools/list_requests", `{}`, map[string]string{requestIDHeader: "rid-42"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list_requests status %d: %s", res.StatusCode, string(data))
	}
	if got := res.Header.Get(requestIDHeader); got != "rid-42" {
		t.Fatalf("request id header = %q", got)
	}
	for _, rec := range buf.records(t) {
		if rec["msg"] == "workflow document loaded" {
			if rec["request_id"] != "rid-42" {
				t.Fatalf("engine log lacks request id: %v", rec)
			}
			return
		}
	}
	t.Fatalf("engine load was not logged")
}

type captureSink struct {
	mu  sync.Mutex
	got []events.Event
}

func (s *captureSink) Publish(_ context.Context, evt events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, evt)
	return nil
}

func TestJWTSubjectBecomesEventActor(t *testing.T) {
	const secret = "test-secret"
	sink := &captureSink{}
	e := engine.New(store.NewDocuments(store.NewMemory()), events.Writer{Sinks: []events.Sink{sink}}, logger.Discard())
	reg, err := tools.NewRegistry(tools.Static(e))
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	srv, cleanup := newTestServer(t, func(c *Config) {
		c.Registry = reg
		c.Auth = AuthConfig{JWTSecret: secret}
	})
	defer cleanup()

	headers := map[string]string{"Authorization": "Bearer " + signToken(t, secret, "alice")}
	body := map[string]any{"originalRequest": "Ship", "tasks": []map[string]string{{"title": "A", "description": "a"}}}
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tools/request_planning", body, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("request_planning status %d: %s", res.StatusCode, string(data))
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.got) != 1 {
		t.Fatalf("expected one event, got %d", len(sink.got))
	}
	if sink.got[0].Type != events.RequestPlanned || sink.got[0].Actor != "alice" {
		t.Fatalf("unexpected event: %+v", sink.got[0])
	}
}

func TestOpenAPIConcurrentFetch(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	const n = 8
	bodies := make([][]byte, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := srv.Client().Get(srv.URL + "/v0/openapi.json")
			if err != nil {
				return
			}
			defer res.Body.Close()
			bodies[i], _ = io.ReadAll(res.Body)
		}()
	}
	wg.Wait()
	for i := range n {
		if len(bodies[i]) == 0 || !bytes.Equal(bodies[i], bodies[0]) {
			t.Fatalf("fetch %d returned a different document", i)
		}
	}
}
