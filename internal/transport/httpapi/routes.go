package httpapi

import (
	"embed"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strconv"
	"strings"
	"time"

	"marquee/internal/animation"
	"marquee/internal/display"
	"marquee/internal/storage"
	"marquee/internal/task/engine"
	"marquee/internal/trigger"
	"marquee/internal/tune"
	logx "marquee/pkg/logx"
)

//go:embed index.html
var static embed.FS

const (
	maxMessageBody = 64 << 10
	resetDelay     = 500 * time.Millisecond
	defaultScale   = 8
	defaultAudit   = 50
)

// Handler returns the routes for the current config. Tests serve it with
// httptest; Start serves it on the configured address.
func (s *Server) Handler() http.Handler {
	cur := s.config()
	return s.handler(cur, isLoopbackAddr(strings.TrimSpace(cur.Addr)))
}

func (s *Server) handler(cur Config, loopback bool) http.Handler {
	mux := http.NewServeMux()
	auth := func(h http.HandlerFunc) http.HandlerFunc { return withAuth(cur.Token, h) }
	act := func(h http.HandlerFunc) http.HandlerFunc { return auth(s.limited(h)) }

	mux.HandleFunc("GET /{$}", s.index)

	mux.HandleFunc("GET /stop", act(s.stop))
	mux.HandleFunc("GET /countdown", act(s.countdown))
	mux.HandleFunc("GET /test", act(s.test))
	mux.HandleFunc("POST /message", act(s.message))
	mux.HandleFunc("GET /clear-inbox", act(s.clearInbox))
	mux.HandleFunc("GET /read-inbox", act(s.readInbox))
	mux.HandleFunc("GET /start-clock", act(s.startClock))
	mux.HandleFunc("GET /feed", act(s.feed))
	mux.HandleFunc("GET /spacex", act(s.feed))
	mux.HandleFunc("GET /tune", act(s.tune))
	mux.HandleFunc("GET /reset", act(s.reset))

	mux.HandleFunc("GET /status", auth(s.status))
	mux.HandleFunc("GET /inbox", auth(s.inbox))
	mux.HandleFunc("GET /audit", auth(s.audit))
	mux.HandleFunc("GET /frame.png", auth(s.framePNG(cur.PNGScale)))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	if cur.Pprof {
		if cur.Token == "" && !loopback {
			s.log.Warn("pprof not mounted: non-loopback addr requires a token")
		} else {
			mux.HandleFunc("/debug/pprof/", auth(hpprof.Index))
			mux.HandleFunc("/debug/pprof/cmdline", auth(hpprof.Cmdline))
			mux.HandleFunc("/debug/pprof/profile", auth(hpprof.Profile))
			mux.HandleFunc("/debug/pprof/symbol", auth(hpprof.Symbol))
			mux.HandleFunc("/debug/pprof/trace", auth(hpprof.Trace))
		}
	}
	return mux
}

func (s *Server) limited(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		h(w, r)
	}
}

func withAuth(token string, h http.HandlerFunc) http.HandlerFunc {
	tok := strings.TrimSpace(token)
	if tok == "" {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		// Authorization: Bearer <token>, or ?token=<token>
		if got := r.URL.Query().Get("token"); got != "" {
			if got == tok {
				h(w, r)
				return
			}
			unauthorized(w)
			return
		}
		const p = "Bearer "
		if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, p) && strings.TrimSpace(strings.TrimPrefix(ah, p)) == tok {
			h(w, r)
			return
		}
		unauthorized(w)
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func source(r *http.Request) trigger.Source {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return trigger.Source{Kind: "http", Actor: host}
}

func text(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(body))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// fail maps trigger and engine errors to a status code.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, trigger.ErrEmptyMessage),
		errors.Is(err, trigger.ErrMessageTooLong),
		errors.Is(err, tune.ErrUnknown),
		errors.Is(err, tune.ErrType):
		code = http.StatusBadRequest
	case errors.Is(err, trigger.ErrTuneDisabled):
		code = http.StatusForbidden
	case errors.Is(err, storage.ErrDisabled):
		code = http.StatusNotFound
	case errors.Is(err, engine.ErrQueueFull),
		errors.Is(err, engine.ErrStopped):
		code = http.StatusServiceUnavailable
	}
	if code == http.StatusInternalServerError {
		s.log.Warn("http request failed", logx.String("path", r.URL.Path), logx.Err(err))
	}
	http.Error(w, err.Error(), code)
}

func intParam(r *http.Request, name string) (int64, bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, false, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, true, err
	}
	return n, true, nil
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	b, err := static.ReadFile("index.html")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(b)
}

func (s *Server) stop(w http.ResponseWriter, r *http.Request) {
	if err := s.ctl.Stop(r.Context(), source(r)); err != nil {
		s.fail(w, r, err)
		return
	}
	text(w, "stopped")
}

func (s *Server) countdown(w http.ResponseWriter, r *http.Request) {
	n, ok, err := intParam(r, "seconds")
	if err != nil || !ok {
		http.Error(w, "seconds: integer required", http.StatusBadRequest)
		return
	}
	if err := s.ctl.Countdown(r.Context(), source(r), int(n)); err != nil {
		s.fail(w, r, err)
		return
	}
	text(w, "started")
}

func (s *Server) test(w http.ResponseWriter, r *http.Request) {
	if err := s.ctl.Test(r.Context(), source(r)); err != nil {
		s.fail(w, r, err)
		return
	}
	text(w, "test")
}

type messageRequest struct {
	Text    string   `json:"text"`
	Effects []string `json:"effects"`
	Read    bool     `json:"read"`
}

func (s *Server) message(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBody))
	if err := dec.Decode(&req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := s.ctl.Deliver(r.Context(), source(r), req.Text, req.Effects, req.Read); err != nil {
		s.fail(w, r, err)
		return
	}
	text(w, "message")
}

func (s *Server) clearInbox(w http.ResponseWriter, r *http.Request) {
	if _, err := s.ctl.ClearInbox(r.Context(), source(r)); err != nil {
		s.fail(w, r, err)
		return
	}
	text(w, "cleared")
}

func (s *Server) readInbox(w http.ResponseWriter, r *http.Request) {
	if _, err := s.ctl.ReadInbox(r.Context(), source(r)); err != nil {
		s.fail(w, r, err)
		return
	}
	text(w, "read")
}

// startClock counts from start_timestamp, or from the local time now.
func (s *Server) startClock(w http.ResponseWriter, r *http.Request) {
	start, ok, err := intParam(r, "start_timestamp")
	if err != nil {
		http.Error(w, "start_timestamp: integer required", http.StatusBadRequest)
		return
	}
	if !ok {
		start = animation.LocalEpoch(time.Now())
	}
	if err := s.ctl.StartClock(r.Context(), source(r), start); err != nil {
		s.fail(w, r, err)
		return
	}
	text(w, "started")
}

func (s *Server) feed(w http.ResponseWriter, r *http.Request) {
	if err := s.ctl.Feed(r.Context(), source(r)); err != nil {
		s.fail(w, r, err)
		return
	}
	text(w, "started")
}

func (s *Server) tune(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if err := s.ctl.Tune(r.Context(), source(r), q.Get("var"), q.Get("type"), q.Get("value")); err != nil {
		s.fail(w, r, err)
		return
	}
	text(w, "set")
}

func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	if s.restart == nil {
		http.Error(w, "reset not available", http.StatusNotImplemented)
		return
	}
	s.log.Info("reset requested", logx.String("remote", source(r).Actor))
	time.AfterFunc(resetDelay, s.restart)
	text(w, "reset")
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.ctl.Status())
}

func (s *Server) inbox(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.ctl.Inbox())
}

func (s *Server) audit(w http.ResponseWriter, r *http.Request) {
	limit, ok, err := intParam(r, "limit")
	if err != nil || (ok && limit <= 0) {
		http.Error(w, "limit: positive integer required", http.StatusBadRequest)
		return
	}
	if !ok {
		limit = defaultAudit
	}
	entries, err := s.ctl.Audit(r.Context(), int(limit))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, entries)
}

func (s *Server) framePNG(scale int) http.HandlerFunc {
	if scale <= 0 {
		scale = defaultScale
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if s.frames == nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		if err := display.WritePNG(w, s.frames.Snapshot(), scale); err != nil {
			s.log.Debug("frame.png write failed", logx.Err(err))
		}
	}
}
