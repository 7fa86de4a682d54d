package scheduler

import (
	"time"
)

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	loc := s.loc
	if loc == nil {
		loc = time.Local
	}
	tz := s.cfg.Timezone
	if tz == "" {
		tz = loc.String()
	}

	items := make([]ScheduleInfo, 0, len(s.defs))
	for _, d := range s.defs {
		it := ScheduleInfo{ID: d.id, Name: d.name, Spec: d.spec, Spread: d.startupSpread}
		s.statMu.Lock()
		it.Runs, it.Fails = d.runs, d.fails
		if d.last != nil {
			it.LastError = d.last.Error()
		}
		s.statMu.Unlock()
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			it.Next = e.Next
			it.Prev = e.Prev
		}
		items = append(items, it)
	}

	return Snapshot{
		Enabled:   s.cfg.Enabled,
		Running:   s.c != nil,
		Timezone:  tz,
		Schedules: items,
	}
}
