// Package statsview serves the go-echarts runtime dashboard (heap, goroutines,
// GC) for watching the frame loop's allocation behaviour on small hosts.
package statsview

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-echarts/statsview"
	"github.com/go-echarts/statsview/viewer"

	rtsup "marquee/internal/runtime/supervisor"
	logx "marquee/pkg/logx"
)

const (
	DefaultAddr = "localhost:12600"
	path        = "/debug/statsview"
)

type Config struct {
	Addr     string
	Interval time.Duration
}

// viewer configuration is package-global, so only one dashboard may run.
var running sync.Mutex

type Service struct {
	cfg Config
	log logx.Logger

	mu  sync.Mutex
	mgr *statsview.ViewManager
}

func New(cfg Config, log logx.Logger) *Service {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	return &Service{cfg: cfg, log: log}
}

// URL is where the dashboard is served.
func (s *Service) URL() string { return "http://" + s.cfg.Addr + path }

// Start runs the dashboard under sup until Stop or sup is cancelled.
func (s *Service) Start(sup *rtsup.Supervisor) {
	sup.Go0("statsview", func(ctx context.Context) {
		if !running.TryLock() {
			s.log.Warn("statsview already running")
			return
		}
		defer running.Unlock()

		viewer.SetConfiguration(
			viewer.WithAddr(s.cfg.Addr),
			viewer.WithInterval(int(s.cfg.Interval/time.Millisecond)),
		)
		mgr := statsview.New()
		s.mu.Lock()
		s.mgr = mgr
		s.mu.Unlock()

		go mgr.Start()
		s.log.Info("statsview started", logx.String("url", s.URL()))

		<-ctx.Done()
		s.Stop()
	})
}

func (s *Service) Stop() {
	s.mu.Lock()
	mgr := s.mgr
	s.mgr = nil
	s.mu.Unlock()
	if mgr != nil {
		mgr.Stop()
		s.log.Info("statsview stopped")
	}
}
