package httpapi

import (
	"context"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"marquee/internal/animation"
	"marquee/internal/display"
	"marquee/internal/inbox"
	"marquee/internal/storage"
	"marquee/internal/task/engine"
	"marquee/internal/trigger"
	"marquee/internal/tune"
	logx "marquee/pkg/logx"
)

type queued struct {
	name string
	prio engine.Priority
}

type recorder struct {
	mu    sync.Mutex
	tasks []queued
}

func (r *recorder) Enqueue(t engine.Task, p engine.Priority) error {
	r.mu.Lock()
	r.tasks = append(r.tasks, queued{t.Name(), p})
	r.mu.Unlock()
	return nil
}

func (r *recorder) Snapshot() engine.Snapshot { return engine.Snapshot{} }

func (r *recorder) last() queued {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.tasks) == 0 {
		return queued{}
	}
	return r.tasks[len(r.tasks)-1]
}

type fixture struct {
	srv  *Server
	rec  *recorder
	deps *animation.Deps
}

func newFixture(t *testing.T, cfg Config, opts ...trigger.Option) *fixture {
	t.Helper()
	d := &animation.Deps{
		Canvas: display.New(53, 11),
		Tune:   tune.New(),
		Inbox:  inbox.New(8),
		Log:    logx.Nop(),
	}
	rec := &recorder{}
	ctl := trigger.New(d, rec, opts...)
	return &fixture{srv: New(cfg, ctl, WithFrames(d.Canvas)), rec: rec, deps: d}
}

func (f *fixture) do(method, target, body string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	return w
}

func TestTriggerRoutes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		method, target, body string
		wantBody             string
		wantTask             string
		wantPrio             engine.Priority
	}{
		{"GET", "/stop", "", "stopped", "stop", -1},
		{"GET", "/countdown?seconds=90", "", "started", "countdown", 2},
		{"GET", "/test", "", "test", "demo", 1},
		{"POST", "/message", `{"text":"hi","effects":["rainbow"]}`, "message", "message", 1},
		{"GET", "/clear-inbox", "", "cleared", "idle", 2},
		{"GET", "/read-inbox", "", "read", "idle", 3},
		{"GET", "/start-clock?start_timestamp=3600", "", "started", "clock", 5},
		{"GET", "/start-clock", "", "started", "clock", 5},
		{"GET", "/feed", "", "started", "feed", 2},
		{"GET", "/spacex", "", "started", "feed", 2},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, Config{})
			w := f.do(tt.method, tt.target, tt.body)
			if w.Code != http.StatusOK || w.Body.String() != tt.wantBody {
				t.Fatalf("response = %d %q, want 200 %q", w.Code, w.Body.String(), tt.wantBody)
			}
			got := f.rec.last()
			if got.name != tt.wantTask || got.prio != tt.wantPrio {
				t.Fatalf("enqueued %s@%d, want %s@%d", got.name, got.prio, tt.wantTask, tt.wantPrio)
			}
		})
	}
}

func TestBadRequests(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name, method, target, body string
		want                       int
	}{
		{"countdown without seconds", "GET", "/countdown", "", http.StatusBadRequest},
		{"countdown not a number", "GET", "/countdown?seconds=ten", "", http.StatusBadRequest},
		{"message bad json", "POST", "/message", "{", http.StatusBadRequest},
		{"message empty text", "POST", "/message", `{"text":"  "}`, http.StatusBadRequest},
		{"message via GET", "GET", "/message", "", http.StatusMethodNotAllowed},
		{"tune unknown", "GET", "/tune?var=nope&type=int&value=1", "", http.StatusBadRequest},
		{"tune wrong type", "GET", "/tune?var=hold_time&type=bool&value=1", "", http.StatusBadRequest},
		{"audit without store", "GET", "/audit", "", http.StatusNotFound},
		{"reset without hook", "GET", "/reset", "", http.StatusNotImplemented},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, Config{})
			if w := f.do(tt.method, tt.target, tt.body); w.Code != tt.want {
				t.Fatalf("status = %d (%s), want %d", w.Code, strings.TrimSpace(w.Body.String()), tt.want)
			}
		})
	}
}

func TestTune(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	w := f.do("GET", "/tune?var=hold_time&type=int&value=12", "")
	if w.Code != http.StatusOK || w.Body.String() != "set" {
		t.Fatalf("response = %d %q, want 200 set", w.Code, w.Body.String())
	}
	if got := f.deps.Tune.Int(tune.HoldTime); got != 12 {
		t.Fatalf("hold_time = %d, want 12", got)
	}

	f = newFixture(t, Config{}, trigger.WithTuning(false))
	if w := f.do("GET", "/tune?var=hold_time&type=int&value=1", ""); w.Code != http.StatusForbidden {
		t.Fatalf("disabled tune status = %d, want 403", w.Code)
	}
}

func TestAuth(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{Token: "s3cret"})

	tests := []struct {
		name   string
		target string
		header []string
		want   int
	}{
		{"index is public", "/", nil, http.StatusOK},
		{"missing token", "/status", nil, http.StatusUnauthorized},
		{"wrong query token", "/status?token=nope", nil, http.StatusUnauthorized},
		{"query token", "/status?token=s3cret", nil, http.StatusOK},
		{"bearer token", "/status", []string{"Authorization", "Bearer s3cret"}, http.StatusOK},
		{"wrong bearer", "/stop", []string{"Authorization", "Bearer x"}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := f.do("GET", tt.target, "", tt.header...); w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{RatePerSec: 0.001, Burst: 2})

	for i := range 2 {
		if w := f.do("GET", "/test", ""); w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i, w.Code)
		}
	}
	if w := f.do("GET", "/test", ""); w.Code != http.StatusTooManyRequests {
		t.Fatalf("third request status = %d, want 429", w.Code)
	}
	// Views are not limited.
	if w := f.do("GET", "/status", ""); w.Code != http.StatusOK {
		t.Fatalf("status view = %d, want 200", w.Code)
	}
}

func TestStatusAndInbox(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	f.deps.Inbox.Add(inbox.NewMessage("hello", nil, false))

	var st trigger.Status
	if err := json.Unmarshal(f.do("GET", "/status", "").Body.Bytes(), &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.Inbox != 1 || len(st.Tunables) == 0 {
		t.Fatalf("status = %+v, want inbox 1 and tunables", st)
	}

	var msgs []inbox.Message
	if err := json.Unmarshal(f.do("GET", "/inbox", "").Body.Bytes(), &msgs); err != nil {
		t.Fatalf("decode inbox: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Text != "hello" {
		t.Fatalf("inbox = %+v, want [hello]", msgs)
	}
}

func TestFramePNG(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{PNGScale: 4})
	w := f.do("GET", "/frame.png", "")
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("response = %d %s, want 200 image/png", w.Code, w.Header().Get("Content-Type"))
	}
	img, err := png.Decode(w.Body)
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 53*4 || b.Dy() != 11*4 {
		t.Fatalf("frame size = %dx%d, want %dx%d", b.Dx(), b.Dy(), 53*4, 11*4)
	}
}

func TestAudit(t *testing.T) {
	t.Parallel()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "audit")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	f := newFixture(t, Config{}, trigger.WithStore(st))
	f.do("GET", "/stop", "")
	f.do("GET", "/countdown?seconds=5", "")

	var got []storage.AuditEntry
	if err := json.Unmarshal(f.do("GET", "/audit?limit=10", "").Body.Bytes(), &got); err != nil {
		t.Fatalf("decode audit: %v", err)
	}
	if len(got) != 2 || got[0].Action != "countdown" || got[1].Action != "stop" {
		t.Fatalf("audit = %+v, want [countdown stop]", got)
	}
	if got[0].Source != "http" {
		t.Fatalf("audit source = %q, want http", got[0].Source)
	}
}

func TestReset(t *testing.T) {
	t.Parallel()
	done := make(chan struct{})
	d := &animation.Deps{Canvas: display.New(53, 11), Tune: tune.New(), Inbox: inbox.New(8)}
	srv := New(Config{}, trigger.New(d, &recorder{}), WithRestart(func() { close(done) }))

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/reset", nil))
	if w.Body.String() != "reset" {
		t.Fatalf("body = %q, want reset", w.Body.String())
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("restart hook not called")
	}
}

func TestServerLifecycle(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{Enabled: true, Addr: "127.0.0.1:0"})
	ctx := context.Background()
	f.srv.Start(ctx)
	t.Cleanup(func() { f.srv.Stop(ctx) })

	var addr string
	deadline := time.Now().Add(5 * time.Second)
	for addr == "" && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
		addr = f.srv.Addr()
	}
	if addr == "" {
		t.Fatal("server did not start")
	}

	resp, err := http.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz = %d, want 200", resp.StatusCode)
	}

	f.srv.Reconfigure(ctx, Config{Enabled: false})
	if f.srv.Supervisor() != nil {
		t.Fatal("supervisor still set after disable")
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	tests := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1:8080", true},
		{"localhost:8080", true},
		{"[::1]:8080", true},
		{":8080", false},
		{"0.0.0.0:8080", false},
		{"192.168.1.5:8080", false},
		{"nonsense", false},
	}
	for _, tt := range tests {
		if got := isLoopbackAddr(tt.addr); got != tt.want {
			t.Fatalf("isLoopbackAddr(%q) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}
