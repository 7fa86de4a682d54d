// Package telegram is an owner-only Telegram front end for the trigger
// controller.
package telegram

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	rtsup "marquee/internal/runtime/supervisor"
	"marquee/internal/trigger"
	logx "marquee/pkg/logx"
)

type Config struct {
	Token        string
	OwnerUserIDs []int64
	PollTimeout  time.Duration
}

const handlerTimeout = 10 * time.Second

type Bot struct {
	cfg    Config
	log    logx.Logger
	router *Router

	bot     *tele.Bot
	runMu   sync.Mutex
	running bool

	// sup owns the poll loop and stop watcher. It is created on Start() and
	// cancelled on Stop().
	sup *rtsup.Supervisor

	menuMu   sync.Mutex
	menuHash uint64
}

func New(cfg Config, ctl *trigger.Controller, log logx.Logger) (*Bot, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	r := NewRouter(Commands(ctl, nil),
		MWPanicRecover(log),
		MWRequestLog(log),
		MWOwnerOnly(cfg.OwnerUserIDs),
		MWTimeout(handlerTimeout),
	)
	t := &Bot{cfg: cfg, log: log, router: r, bot: b}
	b.Handle(tele.OnText, t.onText)
	b.Handle(tele.OnCallback, t.onCallback)
	return t, nil
}

// Supervisor returns the bot's supervisor (nil if not started).
func (t *Bot) Supervisor() *rtsup.Supervisor {
	t.runMu.Lock()
	defer t.runMu.Unlock()
	return t.sup
}

func (t *Bot) onText(c tele.Context) error {
	m := c.Message()
	if m == nil || m.Sender == nil || m.Chat == nil {
		return nil
	}
	req := Request{FromID: m.Sender.ID, Username: m.Sender.Username, ChatID: m.Chat.ID}
	reply, handled, err := t.router.Dispatch(context.Background(), req, m.Text)
	if !handled {
		return nil
	}
	if errors.Is(err, ErrNotOwner) {
		// Stay silent for strangers.
		return nil
	}
	if err != nil {
		reply = "error: " + err.Error()
	}
	if reply == "" {
		return nil
	}
	if err == nil && isPanel(m.Text) {
		return c.Send(reply, panelMarkup())
	}
	return c.Send(reply)
}

func isPanel(text string) bool {
	cmd, _, ok := Parse(text)
	return ok && cmd == "panel"
}

// onCallback runs a control panel button through the same router as typed
// commands and answers with a short notification.
func (t *Bot) onCallback(c tele.Context) error {
	cb := c.Callback()
	if cb == nil || cb.Sender == nil {
		return nil
	}
	text, ok := parsePanelData(cb.Data)
	if !ok {
		return c.Respond()
	}
	req := Request{FromID: cb.Sender.ID, Username: cb.Sender.Username}
	if cb.Message != nil && cb.Message.Chat != nil {
		req.ChatID = cb.Message.Chat.ID
	}
	reply, _, err := t.router.Dispatch(context.Background(), req, text)
	switch {
	case errors.Is(err, ErrNotOwner):
		return c.Respond()
	case err != nil:
		reply = "error: " + err.Error()
	}
	return c.Respond(&tele.CallbackResponse{Text: callbackText(reply)})
}

func (t *Bot) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	t.runMu.Lock()
	if t.running {
		t.runMu.Unlock()
		return nil
	}
	t.running = true
	t.sup = rtsup.New(ctx,
		rtsup.WithLogger(t.log),
		// The display keeps running without the bot.
		rtsup.WithCancelOnError(false),
	)
	sup := t.sup
	t.runMu.Unlock()

	sup.Go0("telebot.menu", func(c context.Context) {
		if err := t.updateMenu(); err != nil {
			t.log.Warn("menu update failed", logx.Err(err))
		}
	})

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		t.bot.Stop()
	})

	// Start blocks until Stop; it can also return on its own in some failure
	// modes, so it runs under a restart loop.
	sup.GoRestart0("telebot.poll", func(c context.Context) {
		t.log.Info("polling started")
		t.bot.Start()
		t.log.Info("polling stopped")
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithPublishFirstError(true),
		rtsup.WithStopOnCleanExit(false),
	)
	return nil
}

func (t *Bot) Stop(ctx context.Context) error {
	t.runMu.Lock()
	sup := t.sup
	t.sup = nil
	wasRunning := t.running
	t.running = false
	t.runMu.Unlock()

	if !wasRunning || sup == nil {
		return nil
	}
	t.log.Info("stopping")
	sup.Cancel()
	go t.bot.Stop()

	// Keep shutdown snappy even if getUpdates long-poll is still waiting.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			t.log.Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		t.log.Debug("telegram stopped with supervisor error", logx.Err(err))
	}
	return nil
}

// updateMenu sets the bot command list, skipping the call when unchanged.
func (t *Bot) updateMenu() error {
	t.menuMu.Lock()
	defer t.menuMu.Unlock()

	cmds := t.router.Commands()
	h := fnv.New64a()
	menu := make([]tele.Command, 0, len(cmds))
	for _, c := range cmds {
		h.Write([]byte(c.Name))
		h.Write([]byte{0})
		h.Write([]byte(c.Description))
		h.Write([]byte{0})
		menu = append(menu, tele.Command{Text: c.Name, Description: c.Description})
	}
	sum := h.Sum64()
	if sum == t.menuHash {
		return nil
	}
	if err := t.bot.SetCommands(menu); err != nil {
		return err
	}
	t.menuHash = sum
	t.log.Info("menu commands updated", logx.Int("count", len(menu)))
	return nil
}
