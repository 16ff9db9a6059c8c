package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/LeventeLantos/automatic-calling/internal/client"
	"github.com/LeventeLantos/automatic-calling/internal/scheduler"
	"github.com/LeventeLantos/automatic-calling/internal/service"
	"github.com/LeventeLantos/automatic-calling/internal/session"
	"github.com/LeventeLantos/automatic-calling/internal/store"
)

type fakePlacer struct {
	mu    sync.Mutex
	calls []client.CallRequest
	err   error
}

func (f *fakePlacer) PlaceCall(ctx context.Context, call client.CallRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.calls = append(f.calls, call)
	return "call-" + call.To, nil
}

func (f *fakePlacer) destinations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		out = append(out, c.To)
	}
	return out
}

type testServer struct {
	mux     http.Handler
	placer  *fakePlacer
	manager *session.Manager
	store   *store.MemoryStore
}

func newTestServer(t *testing.T, sweeper *scheduler.Scheduler) *testServer {
	t.Helper()

	mem := store.NewMemoryStore()
	mgr := session.NewManager(mem, session.WithIDGenerator(func() string { return "s-1" }))
	placer := &fakePlacer{}
	d := service.NewDialer(mgr, placer, service.Config{
		BaseURL:       "https://calls.example.com",
		From:          "815012345678",
		AckDigit:      "1",
		Prompt:        "press 1",
		Language:      "ja-JP",
		InputTimeoutS: 5,
	})

	return &testServer{
		mux:     Router(NewHandler(d, mgr, sweeper)),
		placer:  placer,
		manager: mgr,
		store:   mem,
	}
}

func (ts *testServer) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	ts.mux.ServeHTTP(rr, req)
	return rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var m map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &m); err != nil {
		t.Fatalf("failed to decode json: %v body=%q", err, rr.Body.String())
	}
	return m
}

func assertError(t *testing.T, rr *httptest.ResponseRecorder, status int, textCode string) map[string]any {
	t.Helper()

	if rr.Code != status {
		t.Fatalf("expected %d, got %d body=%q", status, rr.Code, rr.Body.String())
	}
	m := decodeJSON(t, rr)
	if m["code"] != textCode {
		t.Fatalf("expected code %q, got %#v", textCode, m["code"])
	}
	if d, _ := m["detail"].(string); d == "" {
		t.Fatalf("expected detail, got %#v", m)
	}
	return m
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)

	rr := ts.do(t, http.MethodGet, "/v1/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ok, _ := decodeJSON(t, rr)["ok"].(bool); !ok {
		t.Fatalf("expected ok=true")
	}
}

func TestRoot(t *testing.T) {
	ts := newTestServer(t, nil)

	rr := ts.do(t, http.MethodGet, "/", "")
	if rr.Code != http.StatusOK || rr.Body.String() != "automatic-calling" {
		t.Fatalf("unexpected root response: %d %q", rr.Code, rr.Body.String())
	}
}

func TestTrigger_JSONBodyDialsFirstDestination(t *testing.T) {
	ts := newTestServer(t, nil)

	rr := ts.do(t, http.MethodPost, "/", `{"to":"090-1234-5678,080-1111-2222","text":"disk full","loop":2,"round_robin":false}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}
	m := decodeJSON(t, rr)
	if m["message"] != "create call: call-819012345678" {
		t.Fatalf("unexpected message: %#v", m["message"])
	}

	sess, err := ts.manager.Read(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := []string{"818011112222", "819012345678", "818011112222"}
	if strings.Join(sess.ToList, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected queue: %v", sess.ToList)
	}

	call := ts.placer.calls[0]
	if call.EventURL != "https://calls.example.com/event/s-1" {
		t.Fatalf("unexpected event url: %q", call.EventURL)
	}
	if call.NCCO[1].EventURL[0] != "https://calls.example.com/input/s-1" {
		t.Fatalf("unexpected input url: %#v", call.NCCO[1].EventURL)
	}
}

func TestTrigger_QueryParamsWinOverBody(t *testing.T) {
	ts := newTestServer(t, nil)

	rr := ts.do(t, http.MethodPost, "/?to=09012345678&text=alert&loop=1&round_robin=false", `{"host":"web-1","alert":{"status":"critical"}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}
	if got := ts.placer.destinations(); len(got) != 1 || got[0] != "819012345678" {
		t.Fatalf("unexpected destinations: %v", got)
	}

	sess, err := ts.manager.Read(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if sess.CallParams.Text != "alert" || sess.CallParams.Loop != 1 || sess.CallParams.RoundRobin {
		t.Fatalf("unexpected params: %+v", sess.CallParams)
	}
}

func TestTrigger_QueryDefaults(t *testing.T) {
	ts := newTestServer(t, nil)

	rr := ts.do(t, http.MethodPost, "/?to=09012345678&text=alert", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}

	sess, err := ts.manager.Read(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if sess.CallParams.Loop != 3 || !sess.CallParams.RoundRobin {
		t.Fatalf("expected loop=3 round_robin=true, got %+v", sess.CallParams)
	}
	if len(sess.ToList) != 2 {
		t.Fatalf("expected 2 pending calls, got %v", sess.ToList)
	}
}

func TestTrigger_RejectsBadRequests(t *testing.T) {
	cases := []struct {
		name   string
		target string
		body   string
		detail string
	}{
		{"missing both", "/", `{}`, "to and text parameters are required"},
		{"missing text", "/", `{"to":"09012345678"}`, "to and text parameters are required"},
		{"empty body", "/", ``, "to and text parameters are required"},
		{"only to in query", "/?to=09012345678", ``, "to and text parameters are required"},
		{"invalid json", "/", `{"to":`, "not a valid dispatch object"},
		{"invalid numbers", "/", `{"to":"09012345678,12345,abc","text":"x"}`, "12345, abc"},
		{"loop too small", "/", `{"to":"09012345678","text":"x","loop":0}`, "loop must be between 1 and 10"},
		{"loop too large", "/?to=09012345678&text=x&loop=11", ``, "loop must be between 1 and 10"},
		{"loop not a number", "/?to=09012345678&text=x&loop=two", ``, "loop must be an integer"},
		{"round_robin not a bool", "/?to=09012345678&text=x&round_robin=maybe", ``, "round_robin must be a boolean"},
		{"text too long", "/", `{"to":"09012345678","text":"` + strings.Repeat("あ", 661) + `"}`, "text must be at most 660 characters"},
		{"to too long", "/", `{"to":"` + strings.Repeat("0", 121) + `","text":"x"}`, "to must be at most 120 characters"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t, nil)

			rr := ts.do(t, http.MethodPost, tc.target, tc.body)
			m := assertError(t, rr, http.StatusBadRequest, TextCodeBadInput)
			if d := m["detail"].(string); !strings.Contains(d, tc.detail) {
				t.Fatalf("expected detail to contain %q, got %q", tc.detail, d)
			}
			if len(ts.placer.destinations()) != 0 {
				t.Fatalf("expected no calls to be placed")
			}
			if _, err := ts.manager.Read(context.Background(), "s-1"); !errors.Is(err, session.ErrNotFound) {
				t.Fatalf("expected no session to be created, got %v", err)
			}
		})
	}
}

func TestTrigger_TextAtLimitIsAccepted(t *testing.T) {
	ts := newTestServer(t, nil)

	rr := ts.do(t, http.MethodPost, "/", `{"to":"09012345678","text":"`+strings.Repeat("あ", 660)+`","loop":1}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}
}

func TestTrigger_DispatchFailureIs500(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.placer.err = errors.New("provider down")

	rr := ts.do(t, http.MethodPost, "/", `{"to":"09012345678","text":"x","loop":2}`)
	m := assertError(t, rr, http.StatusInternalServerError, TextCodeCallFailed)
	if d := m["detail"].(string); !strings.Contains(d, "provider down") {
		t.Fatalf("expected provider error in detail, got %q", d)
	}

	sess, err := ts.manager.Read(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(sess.ToList) != 1 {
		t.Fatalf("expected the failed destination to be consumed, got %v", sess.ToList)
	}
}

func TestEvent_CompletedAdvancesUntilExhausted(t *testing.T) {
	ts := newTestServer(t, nil)

	if rr := ts.do(t, http.MethodPost, "/", `{"to":"09012345678","text":"x","loop":2}`); rr.Code != http.StatusOK {
		t.Fatalf("trigger: %d %q", rr.Code, rr.Body.String())
	}

	rr := ts.do(t, http.MethodPost, "/event/s-1", `{"status":"completed","uuid":"leg-1"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if m := decodeJSON(t, rr); m["message"] != "create call: call-819012345678" {
		t.Fatalf("unexpected message: %#v", m["message"])
	}

	rr = ts.do(t, http.MethodPost, "/event/s-1", `{"status":"completed"}`)
	if m := decodeJSON(t, rr); m["message"] != "no more calls: s-1" {
		t.Fatalf("unexpected message: %#v", m["message"])
	}
	if got := ts.placer.destinations(); len(got) != 2 {
		t.Fatalf("expected 2 calls, got %v", got)
	}
}

func TestEvent_NonCompletedStatusIsInformational(t *testing.T) {
	ts := newTestServer(t, nil)

	for _, body := range []string{`{"status":"ringing"}`, `{"other":true}`, `not json`} {
		rr := ts.do(t, http.MethodPost, "/event/s-1", body)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200 for %q, got %d", body, rr.Code)
		}
		if m, _ := decodeJSON(t, rr)["message"].(string); !strings.HasPrefix(m, "unknown event: s-1") {
			t.Fatalf("unexpected message for %q: %q", body, m)
		}
	}
}

func TestEvent_MissingSessionIsSoft(t *testing.T) {
	ts := newTestServer(t, nil)

	rr := ts.do(t, http.MethodPost, "/event/gone", `{"status":"completed"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if m := decodeJSON(t, rr); m["message"] != "session not found, the call has probably ended: gone" {
		t.Fatalf("unexpected message: %#v", m["message"])
	}
}

func TestInput_AcknowledgeReturnsPlaybackScript(t *testing.T) {
	ts := newTestServer(t, nil)

	if rr := ts.do(t, http.MethodPost, "/", `{"to":"09012345678","text":"disk full on web-1","loop":3}`); rr.Code != http.StatusOK {
		t.Fatalf("trigger: %d %q", rr.Code, rr.Body.String())
	}

	rr := ts.do(t, http.MethodPost, "/input/s-1", `{"dtmf":{"digits":"1","timed_out":false}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}

	var script []client.Action
	if err := json.Unmarshal(rr.Body.Bytes(), &script); err != nil {
		t.Fatalf("decode script: %v body=%q", err, rr.Body.String())
	}
	if len(script) != 1 || script[0].Action != "talk" || script[0].Text != "disk full on web-1" || script[0].Language != "ja-JP" {
		t.Fatalf("unexpected script: %+v", script)
	}

	if _, err := ts.manager.Read(context.Background(), "s-1"); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected session to be terminated, got %v", err)
	}

	rr = ts.do(t, http.MethodPost, "/event/s-1", `{"status":"completed"}`)
	if m := decodeJSON(t, rr); !strings.HasPrefix(m["message"].(string), "session not found") {
		t.Fatalf("expected late completed event to be soft, got %#v", m)
	}
}

func TestInput_OtherDigitLeavesSession(t *testing.T) {
	ts := newTestServer(t, nil)

	if rr := ts.do(t, http.MethodPost, "/", `{"to":"09012345678","text":"x","loop":2}`); rr.Code != http.StatusOK {
		t.Fatalf("trigger: %d", rr.Code)
	}

	rr := ts.do(t, http.MethodPost, "/input/s-1", `{"dtmf":{"digits":"2"}}`)
	if m := decodeJSON(t, rr); m["message"] != "next call: s-1" {
		t.Fatalf("unexpected message: %#v", m["message"])
	}
	if _, err := ts.manager.Read(context.Background(), "s-1"); err != nil {
		t.Fatalf("expected session to remain: %v", err)
	}
}

func TestInput_MissingSessionIsSoft(t *testing.T) {
	ts := newTestServer(t, nil)

	rr := ts.do(t, http.MethodPost, "/input/gone", `{"dtmf":{"digits":"1"}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if m := decodeJSON(t, rr); m["message"] != "session not found, the call has probably ended: gone" {
		t.Fatalf("unexpected message: %#v", m["message"])
	}
}

func TestInput_MalformedPayloadIs500(t *testing.T) {
	for _, body := range []string{`{}`, `{"dtmf":{}}`, `{"dtmf":{"digits":1}}`, `nope`} {
		ts := newTestServer(t, nil)

		rr := ts.do(t, http.MethodPost, "/input/s-1", body)
		m := assertError(t, rr, http.StatusInternalServerError, TextCodeInputInvalid)
		if d := m["detail"].(string); !strings.HasPrefix(d, "input error") {
			t.Fatalf("unexpected detail for %q: %q", body, d)
		}
	}
}

func TestGetSession(t *testing.T) {
	ts := newTestServer(t, nil)

	if rr := ts.do(t, http.MethodPost, "/", `{"to":"09012345678","text":"x","loop":1}`); rr.Code != http.StatusOK {
		t.Fatalf("trigger: %d", rr.Code)
	}

	rr := ts.do(t, http.MethodGet, "/v1/sessions/s-1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	m := decodeJSON(t, rr)
	if m["id"] != "s-1" || m["status"] != "exhausted" || m["state"] != "exhausted" {
		t.Fatalf("unexpected session view: %#v", m)
	}

	rr = ts.do(t, http.MethodGet, "/v1/sessions/missing", "")
	assertError(t, rr, http.StatusNotFound, TextCodeSessionNotFound)
}

func TestSweeper_DisabledReturns404(t *testing.T) {
	ts := newTestServer(t, nil)

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/v1/sweeper/status"},
		{http.MethodPost, "/v1/sweeper/start"},
		{http.MethodPost, "/v1/sweeper/stop"},
	} {
		rr := ts.do(t, route.method, route.path, "")
		assertError(t, rr, http.StatusNotFound, TextCodeFeatureDisabled)
	}
}

func TestSweeper_StartStopStatus(t *testing.T) {
	s, err := scheduler.New("sweeper", time.Hour, func(context.Context) error { return nil })
	if err != nil {
		t.Fatalf("failed to create scheduler: %v", err)
	}
	defer s.Stop()
	ts := newTestServer(t, s)

	rr := ts.do(t, http.MethodPost, "/v1/sweeper/start", "")
	if running, _ := decodeJSON(t, rr)["running"].(bool); !running {
		t.Fatalf("expected running=true after start")
	}

	rr = ts.do(t, http.MethodGet, "/v1/sweeper/status", "")
	m := decodeJSON(t, rr)
	if m["name"] != "sweeper" || m["interval"] != "1h0m0s" || m["running"] != true {
		t.Fatalf("unexpected status: %#v", m)
	}

	rr = ts.do(t, http.MethodPost, "/v1/sweeper/stop", "")
	if running, _ := decodeJSON(t, rr)["running"].(bool); running {
		t.Fatalf("expected running=false after stop")
	}
}
