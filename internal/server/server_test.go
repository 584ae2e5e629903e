package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/escalation"
	"github.com/zulandar/switchboard/internal/journal"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

type fixture struct {
	svc     *escalation.Service
	journal *journal.Journal
	router  *gin.Engine
}

func setup(t *testing.T) *fixture {
	t.Helper()
	j, err := journal.Open(config.JournalConfig{Driver: "sqlite"})
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	t.Cleanup(func() { j.Close() })

	svc, err := escalation.New(escalation.Opts{Journal: j})
	if err != nil {
		t.Fatalf("escalation.New: %v", err)
	}
	router, err := NewRouter(Opts{
		Service:           svc,
		History:           j,
		PollInterval:      5 * time.Millisecond,
		HeartbeatInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	return &fixture{svc: svc, journal: j, router: router}
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode %s %s: %v (body %s)", method, path, err, w.Body.String())
		}
	}
	return w, env
}

func (f *fixture) escalate(t *testing.T) string {
	t.Helper()
	w, env := f.do(t, http.MethodPost, "/api/human-agent/escalate", map[string]any{
		"customer_id": "cust-1",
		"query":       "Need a better EMI plan",
		"reason":      "price_negotiation",
		"priority":    2,
		"language":    "hi",
	})
	if w.Code != http.StatusOK || !env.Success {
		t.Fatalf("escalate: %d %s", w.Code, w.Body.String())
	}
	var res escalation.EscalateResult
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	return res.QueryID
}

func TestNewRouter_NilService(t *testing.T) {
	_, err := NewRouter(Opts{})
	if err == nil {
		t.Fatal("expected error for nil service")
	}
	if !strings.Contains(err.Error(), "service is required") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "service is required")
	}
}

func TestStart_NilService(t *testing.T) {
	err := Start(context.Background(), StartOpts{})
	if err == nil || !strings.Contains(err.Error(), "service is required") {
		t.Errorf("Start error = %v", err)
	}
}

func TestHealth(t *testing.T) {
	f := setup(t)
	w, _ := f.do(t, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestIndexPage(t *testing.T) {
	f := setup(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{"Switchboard", "Rajesh Kumar", "sales, test_rides, finance", "EventSource"} {
		if !strings.Contains(body, want) {
			t.Errorf("index page missing %q", want)
		}
	}
}

func TestEscalateAndQuery(t *testing.T) {
	f := setup(t)
	id := f.escalate(t)

	w, env := f.do(t, http.MethodGet, "/api/human-agent/query/"+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("query status = %d", w.Code)
	}
	var q struct {
		ID       string `json:"id"`
		Status   string `json:"status"`
		Language string `json:"language"`
	}
	if err := json.Unmarshal(env.Data, &q); err != nil {
		t.Fatalf("decode query: %v", err)
	}
	if q.ID != id || q.Status != "pending" || q.Language != "hi" {
		t.Errorf("query = %+v", q)
	}
}

func TestEscalate_Errors(t *testing.T) {
	f := setup(t)

	w, env := f.do(t, http.MethodPost, "/api/human-agent/escalate", map[string]any{"query": ""})
	if w.Code != http.StatusBadRequest || env.Success {
		t.Errorf("empty query: %d %+v", w.Code, env)
	}

	w, env = f.do(t, http.MethodPost, "/api/human-agent/escalate", map[string]any{"query": "hi", "reason": "weather"})
	if w.Code != http.StatusBadRequest || env.Error == "" {
		t.Errorf("bad reason: %d %+v", w.Code, env)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/human-agent/escalate", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d", rec.Code)
	}
}

func TestClassify(t *testing.T) {
	f := setup(t)

	tests := []struct {
		name          string
		body          map[string]any
		wantEscalated bool
		wantReason    string
	}{
		{"discount", map[string]any{"query": "Any discount on the Classic 350?", "confidence": 0.95, "latency_seconds": 1}, true, "price_negotiation"},
		{"answered", map[string]any{"query": "What time does the showroom open", "confidence": 0.95, "latency_seconds": 2}, false, ""},
		{"slow responder", map[string]any{"query": "What time does the showroom open", "confidence": 0.95, "latency_seconds": 45}, true, "complex_query"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := f.do(t, http.MethodPost, "/api/human-agent/classify", tt.body)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d body %s", w.Code, w.Body.String())
			}
			var res escalation.EscalateResult
			if err := json.Unmarshal(env.Data, &res); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if res.Escalated != tt.wantEscalated || string(res.Reason) != tt.wantReason {
				t.Errorf("result = %+v", res)
			}
		})
	}

	w, _ := f.do(t, http.MethodPost, "/api/human-agent/classify", map[string]any{"confidence": 1})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing query status = %d", w.Code)
	}
}

func TestLifecycle(t *testing.T) {
	f := setup(t)
	id := f.escalate(t)

	_, env := f.do(t, http.MethodGet, "/api/human-agent/response/"+id, nil)
	if env.Success {
		t.Error("response available before resolution")
	}

	w, env := f.do(t, http.MethodPost, "/api/human-agent/resolve/"+id, map[string]string{"response": "early"})
	if w.Code != http.StatusConflict {
		t.Errorf("resolve pending status = %d (%s)", w.Code, env.Error)
	}

	if _, err := f.svc.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	w, _ = f.do(t, http.MethodPost, "/api/human-agent/resolve/"+id, map[string]string{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("resolve without response status = %d", w.Code)
	}

	w, env = f.do(t, http.MethodPost, "/api/human-agent/resolve/"+id, map[string]string{"response": "12 month EMI at 0%"})
	if w.Code != http.StatusOK || !env.Success {
		t.Fatalf("resolve: %d %s", w.Code, w.Body.String())
	}

	_, env = f.do(t, http.MethodGet, "/api/human-agent/response/"+id, nil)
	var resp escalation.AgentResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Response != "12 month EMI at 0%" || resp.AgentName != "Amit Patel" {
		t.Errorf("response = %+v", resp)
	}

	w, _ = f.do(t, http.MethodPost, "/api/human-agent/close/"+id, nil)
	if w.Code != http.StatusOK {
		t.Errorf("close status = %d", w.Code)
	}
	w, _ = f.do(t, http.MethodPost, "/api/human-agent/close/"+id, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("second close status = %d", w.Code)
	}
}

func TestNotFound(t *testing.T) {
	f := setup(t)
	for _, path := range []string{"/api/human-agent/query/ESC-MISSING", "/api/human-agent/close/ESC-MISSING"} {
		method := http.MethodGet
		if strings.Contains(path, "close") {
			method = http.MethodPost
		}
		w, env := f.do(t, method, path, nil)
		if w.Code != http.StatusNotFound || env.Success {
			t.Errorf("%s: %d %+v", path, w.Code, env)
		}
	}
}

func TestAgentStatus(t *testing.T) {
	f := setup(t)

	w, _ := f.do(t, http.MethodPost, "/api/human-agent/status/agent_1", map[string]string{"status": "offline"})
	if w.Code != http.StatusOK {
		t.Fatalf("status update = %d", w.Code)
	}
	w, _ = f.do(t, http.MethodPost, "/api/human-agent/status/agent_1", map[string]string{"status": "asleep"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid status = %d", w.Code)
	}
	w, _ = f.do(t, http.MethodPost, "/api/human-agent/status/agent_42", map[string]string{"status": "busy"})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown agent = %d", w.Code)
	}
	w, _ = f.do(t, http.MethodPost, "/api/human-agent/status/agent_1", map[string]string{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing status = %d", w.Code)
	}

	_, env := f.do(t, http.MethodGet, "/api/human-agent/dashboard", nil)
	var snap escalation.Snapshot
	if err := json.Unmarshal(env.Data, &snap); err != nil {
		t.Fatalf("decode dashboard: %v", err)
	}
	if snap.TotalAgents != 4 || snap.AvailableAgents != 3 {
		t.Errorf("dashboard = %d total %d available", snap.TotalAgents, snap.AvailableAgents)
	}
}

func TestWaitTime(t *testing.T) {
	f := setup(t)
	_, env := f.do(t, http.MethodGet, "/api/human-agent/wait-time", nil)
	var got map[string]string
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["estimated_wait_time"] != escalation.WaitNoQueue {
		t.Errorf("wait = %q, want %q", got["estimated_wait_time"], escalation.WaitNoQueue)
	}
}

func TestHistory(t *testing.T) {
	f := setup(t)
	id := f.escalate(t)
	f.escalate(t)

	_, env := f.do(t, http.MethodGet, "/api/human-agent/history?query_id="+id, nil)
	var events []struct {
		QueryID string `json:"query_id"`
		Type    string `json:"type"`
	}
	if err := json.Unmarshal(env.Data, &events); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(events) != 1 || events[0].QueryID != id || events[0].Type != "enqueued" {
		t.Errorf("events = %+v", events)
	}

	_, env = f.do(t, http.MethodGet, "/api/human-agent/history?limit=1", nil)
	if err := json.Unmarshal(env.Data, &events); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("limit=1 returned %d events", len(events))
	}

	w, _ := f.do(t, http.MethodGet, "/api/human-agent/history?limit=zero", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", w.Code)
	}
}

func TestHistory_Disabled(t *testing.T) {
	svc, err := escalation.New(escalation.Opts{})
	if err != nil {
		t.Fatal(err)
	}
	router, err := NewRouter(Opts{Service: svc})
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/human-agent/history", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", w.Code)
	}
}

func TestSSE_StreamsDashboardChanges(t *testing.T) {
	f := setup(t)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	go func() {
		time.Sleep(50 * time.Millisecond)
		f.svc.Escalate(context.Background(), "c", "call me back", "", 1, "en")
	}()

	req := httptest.NewRequest(http.MethodGet, "/api/human-agent/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	body := w.Body.String()
	if !strings.HasPrefix(body, "event: connected\n") {
		t.Errorf("stream does not start with connected event: %q", body)
	}
	if n := strings.Count(body, "event: dashboard\n"); n < 2 {
		t.Errorf("dashboard events = %d, want initial plus one change\n%s", n, body)
	}
	if !strings.Contains(body, `"pending_queries":1`) {
		t.Errorf("stream missing updated snapshot: %s", body)
	}
}

func TestWriteSSE(t *testing.T) {
	var buf bytes.Buffer
	writeSSE(&buf, "heartbeat", map[string]string{"timestamp": "now"})
	want := "event: heartbeat\ndata: {\"timestamp\":\"now\"}\n\n"
	if buf.String() != want {
		t.Errorf("writeSSE = %q, want %q", buf.String(), want)
	}
}

func TestStatusFor(t *testing.T) {
	svc, _ := escalation.New(escalation.Opts{})
	res := svc.Resolve(context.Background(), "ESC-X", "x")
	if got := statusFor(res.Err()); got != http.StatusNotFound {
		t.Errorf("not found -> %d", got)
	}
	if got := statusFor(nil); got != http.StatusBadRequest {
		t.Errorf("nil -> %d", got)
	}
}
