package app

import (
	"context"
	"sync/atomic"
	"time"

	"marquee/internal/feed"
	logx "marquee/pkg/logx"
)

// feedSource lets a config reload swap the feed client under a running feed
// animation.
type feedSource struct {
	cur atomic.Pointer[feed.Client]
}

func newFeedSource(url string, timeout time.Duration, log logx.Logger) *feedSource {
	s := &feedSource{}
	s.set(url, timeout, log)
	return s
}

func (s *feedSource) set(url string, timeout time.Duration, log logx.Logger) {
	s.cur.Store(feed.New(url, timeout, log))
}

func (s *feedSource) Next(ctx context.Context) (feed.Mission, error) {
	return s.cur.Load().Next(ctx)
}

func (s *feedSource) Mission(ctx context.Context, id string) (feed.Mission, error) {
	return s.cur.Load().Mission(ctx, id)
}
