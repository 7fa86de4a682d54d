package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"marquee/internal/animation"
	"marquee/internal/config"
	"marquee/internal/task/scheduler"
	"marquee/internal/trigger"
	logx "marquee/pkg/logx"
)

// runAction fires a named action. e carries the arguments of schedule
// entries; the startup hook passes a bare entry.
func runAction(ctx context.Context, ctl *trigger.Controller, src trigger.Source, e config.ScheduleEntry, now time.Time) error {
	switch strings.TrimSpace(e.Action) {
	case "idle":
		return ctl.Idle(ctx, src)
	case "clock":
		return ctl.StartClock(ctx, src, animation.LocalEpoch(now))
	case "countdown":
		return ctl.Countdown(ctx, src, e.Seconds)
	case "message":
		_, err := ctl.Deliver(ctx, src, e.Text, e.Effects, e.Read)
		return err
	case "feed":
		return ctl.Feed(ctx, src)
	case "stop":
		return ctl.Stop(ctx, src)
	case "clear_inbox":
		_, err := ctl.ClearInbox(ctx, src)
		return err
	case "read_inbox":
		_, err := ctl.ReadInbox(ctx, src)
		return err
	case "test":
		return ctl.Test(ctx, src)
	default:
		return fmt.Errorf("unknown action %q", e.Action)
	}
}

// applySchedules replaces every registered schedule with entries.
func applySchedules(sched *scheduler.Service, ctl *trigger.Controller, entries []config.ScheduleEntry, now func() time.Time, log logx.Logger) {
	if n := sched.RemoveAll(); n > 0 {
		log.Debug("schedules cleared", logx.Int("count", n))
	}
	for _, e := range entries {
		src := trigger.Source{Kind: "schedule", Actor: e.Name}
		_, err := sched.AddSchedule(e.Name, e.Schedule, func(ctx context.Context) error {
			return runAction(ctx, ctl, src, e, now())
		})
		if err != nil {
			log.Warn("schedule rejected", logx.String("name", e.Name), logx.String("schedule", e.Schedule), logx.Err(err))
			continue
		}
		log.Debug("schedule added", logx.String("name", e.Name), logx.String("schedule", e.Schedule), logx.String("action", e.Action))
	}
}
