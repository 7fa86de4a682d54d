package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"marquee/internal/animation"
	"marquee/internal/trigger"
)

var errUsage = errors.New("usage")

type Command struct {
	Name        string
	Usage       string
	Description string
	Handle      HandlerFunc
}

func source(req *Request) trigger.Source {
	actor := strconv.FormatInt(req.FromID, 10)
	if req.Username != "" {
		actor += " @" + req.Username
	}
	return trigger.Source{Kind: "telegram", Actor: actor}
}

func usage(c string) error { return fmt.Errorf("%w: /%s", errUsage, c) }

// Commands maps the bot commands onto ctl. now defaults to time.Now.
func Commands(ctl *trigger.Controller, now func() time.Time) []Command {
	if now == nil {
		now = time.Now
	}
	return []Command{
		{
			Name: "stop", Description: "Stop all animations",
			Handle: func(ctx context.Context, req *Request) (string, error) {
				return "stopped", ctl.Stop(ctx, source(req))
			},
		},
		{
			Name: "countdown", Usage: "<seconds>", Description: "Start a countdown",
			Handle: func(ctx context.Context, req *Request) (string, error) {
				if len(req.Args) != 1 {
					return "", usage("countdown <seconds>")
				}
				n, err := strconv.Atoi(req.Args[0])
				if err != nil || n <= 0 {
					return "", usage("countdown <seconds>")
				}
				if err := ctl.Countdown(ctx, source(req), n); err != nil {
					return "", err
				}
				return fmt.Sprintf("countdown %s started", time.Duration(min(n, int(animation.MaxCountdown/time.Second)))*time.Second), nil
			},
		},
		{
			Name: "message", Usage: "<text>", Description: "Show a message",
			Handle: func(ctx context.Context, req *Request) (string, error) {
				text := strings.Join(req.Args, " ")
				if text == "" {
					return "", usage("message <text>")
				}
				if _, err := ctl.Deliver(ctx, source(req), text, nil, false); err != nil {
					return "", err
				}
				return "message", nil
			},
		},
		{
			Name: "rainbow", Usage: "<text>", Description: "Show a rainbow message",
			Handle: func(ctx context.Context, req *Request) (string, error) {
				text := strings.Join(req.Args, " ")
				if text == "" {
					return "", usage("rainbow <text>")
				}
				if _, err := ctl.Deliver(ctx, source(req), text, []string{"rainbow"}, false); err != nil {
					return "", err
				}
				return "message", nil
			},
		},
		{
			Name: "clearinbox", Description: "Clear the inbox",
			Handle: func(ctx context.Context, req *Request) (string, error) {
				n, err := ctl.ClearInbox(ctx, source(req))
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("cleared %d", n), nil
			},
		},
		{
			Name: "readinbox", Description: "Replay the inbox",
			Handle: func(ctx context.Context, req *Request) (string, error) {
				n, err := ctl.ReadInbox(ctx, source(req))
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("read %d", n), nil
			},
		},
		{
			Name: "clock", Usage: "[epoch]", Description: "Start the clock",
			Handle: func(ctx context.Context, req *Request) (string, error) {
				start := animation.LocalEpoch(now())
				if len(req.Args) > 0 {
					v, err := strconv.ParseInt(req.Args[0], 10, 64)
					if err != nil {
						return "", usage("clock [epoch]")
					}
					start = v
				}
				return "started", ctl.StartClock(ctx, source(req), start)
			},
		},
		{
			Name: "feed", Description: "Launch countdown feed",
			Handle: func(ctx context.Context, req *Request) (string, error) {
				return "started", ctl.Feed(ctx, source(req))
			},
		},
		{
			Name: "test", Description: "Run the demo countdown",
			Handle: func(ctx context.Context, req *Request) (string, error) {
				return "test", ctl.Test(ctx, source(req))
			},
		},
		{
			Name: "status", Description: "Scheduler status",
			Handle: func(ctx context.Context, req *Request) (string, error) {
				return formatStatus(ctl.Status()), nil
			},
		},
		{
			Name: "panel", Description: "Show the control panel",
			Handle: func(ctx context.Context, req *Request) (string, error) {
				return "marquee", nil
			},
		},
	}
}

func formatStatus(st trigger.Status) string {
	var b strings.Builder
	s := st.Scheduler
	if s.Running && s.Current != "" {
		fmt.Fprintf(&b, "running: %s", s.Current)
		if s.CurrentPriority != nil {
			fmt.Fprintf(&b, " (p%d)", *s.CurrentPriority)
		}
		b.WriteByte('\n')
	} else {
		b.WriteString("running: -\n")
	}
	fmt.Fprintf(&b, "queue: %d/%d\n", s.QueueLen, s.QueueCap)
	for _, q := range s.Queued {
		fmt.Fprintf(&b, "  %s (p%d)\n", q.Name, q.Priority)
	}
	fmt.Fprintf(&b, "inbox: %d\n", st.Inbox)
	fmt.Fprintf(&b, "interrupts: %d, late frames: %d\n", s.Interrupts, s.LateFrames)
	fmt.Fprintf(&b, "frames: %d", st.Frames)
	return b.String()
}
