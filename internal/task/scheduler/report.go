package scheduler

import (
	"time"

	"marquee/internal/eventbus"
	logx "marquee/pkg/logx"
)

const errorWarnThrottle = 5 * time.Second

// Fired is the payload of eventbus.ScheduleFired.
type Fired struct {
	Name  string `json:"name"`
	Error string `json:"error,omitempty"`
}

func (s *Service) report(d *scheduleDef, err error) {
	s.statMu.Lock()
	d.runs++
	d.last = err
	if err != nil {
		d.fails++
	}
	s.statMu.Unlock()

	if s.bus != nil {
		ev := Fired{Name: d.name}
		if err != nil {
			ev.Error = err.Error()
		}
		s.bus.Publish(eventbus.Event{Type: eventbus.ScheduleFired, Time: time.Now(), Data: ev})
	}
	if err == nil {
		s.log.Debug("schedule fired", logx.String("schedule", d.name))
		return
	}

	now := time.Now()
	s.errMu.Lock()
	last := s.lastErrWarn[d.name]
	if !last.IsZero() && now.Sub(last) < errorWarnThrottle {
		s.errMu.Unlock()
		return
	}
	s.lastErrWarn[d.name] = now
	s.errMu.Unlock()

	// Queue full / stopping are important but can be bursty.
	s.log.Warn("schedule job failed", logx.String("schedule", d.name), logx.Err(err))
}
