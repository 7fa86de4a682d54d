package telegram

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"strings"
	"time"

	logx "marquee/pkg/logx"
)

var ErrNotOwner = errors.New("owner only")

// Request is one parsed command message.
type Request struct {
	FromID   int64
	Username string
	ChatID   int64
	Command  string
	Args     []string
}

// HandlerFunc returns the reply text.
type HandlerFunc func(ctx context.Context, req *Request) (string, error)

type Middleware func(next HandlerFunc) HandlerFunc

func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

func MWTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (string, error) {
			if d <= 0 {
				return next(ctx, req)
			}
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(cctx, req)
		}
	}
}

func MWPanicRecover(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (reply string, err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("panic recovered",
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())),
					)
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return next(ctx, req)
		}
	}
}

func MWRequestLog(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (string, error) {
			start := time.Now()
			reply, err := next(ctx, req)
			fields := []logx.Field{
				logx.Int64("chat_id", req.ChatID),
				logx.Int64("from_id", req.FromID),
				logx.String("cmd", req.Command),
				logx.Duration("dur", time.Since(start)),
			}
			if err != nil {
				log.Warn("request failed", append(fields, logx.Err(err))...)
			} else {
				log.Debug("request ok", fields...)
			}
			return reply, err
		}
	}
}

// MWOwnerOnly rejects senders not in owners. An empty list rejects everyone.
func MWOwnerOnly(owners []int64) Middleware {
	own := slices.Clone(owners)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (string, error) {
			if !slices.Contains(own, req.FromID) {
				return "", ErrNotOwner
			}
			return next(ctx, req)
		}
	}
}

// Parse splits "/cmd@bot arg1 arg2" into a lower-case command and args.
// ok is false when text is not a command.
func Parse(text string) (cmd string, args []string, ok bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil, false
	}
	cmd = strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	if cmd == "" {
		return "", nil, false
	}
	return strings.ToLower(cmd), fields[1:], true
}

// Router dispatches commands through the middleware chain.
type Router struct {
	cmds  map[string]Command
	order []string
	h     HandlerFunc
}

func NewRouter(cmds []Command, mw ...Middleware) *Router {
	r := &Router{cmds: make(map[string]Command, len(cmds))}
	for _, c := range cmds {
		r.cmds[c.Name] = c
		r.order = append(r.order, c.Name)
	}
	r.h = Chain(r.route, mw...)
	return r
}

func (r *Router) route(ctx context.Context, req *Request) (string, error) {
	c, ok := r.cmds[req.Command]
	if !ok {
		return r.help(), nil
	}
	return c.Handle(ctx, req)
}

// Commands lists the registered commands in registration order.
func (r *Router) Commands() []Command {
	out := make([]Command, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.cmds[n])
	}
	return out
}

func (r *Router) help() string {
	var b strings.Builder
	b.WriteString("commands:\n")
	for _, c := range r.Commands() {
		fmt.Fprintf(&b, "/%s %s\n", c.Name, c.Usage)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Dispatch handles text. handled is false for non-command messages.
func (r *Router) Dispatch(ctx context.Context, req Request, text string) (reply string, handled bool, err error) {
	cmd, args, ok := Parse(text)
	if !ok {
		return "", false, nil
	}
	req.Command, req.Args = cmd, args
	reply, err = r.h(ctx, &req)
	return reply, true, err
}
