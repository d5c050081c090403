// Package commands consumes platform updates: membership changes of the bot
// itself maintain the destination registry, and a couple of fixed text
// replies cover commands and private chats.
package commands

import (
	"context"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"newsrelay/internal/eventbus"
	"newsrelay/internal/metrics"
	rtsup "newsrelay/internal/runtime/supervisor"
	kit "newsrelay/internal/transport"
	"newsrelay/pkg/logx"
)

const (
	DefaultSourceText   = "Исходный код бота доступен на GitHub: https://github.com/overklassniy/stankin_dean_news_bot"
	DefaultSourceDesc   = "Получить ссылку на GitHub репозиторий бота"
	DefaultPrivateReply = "Привет, пока у меня нет функционала в личных сообщениях. Добавьте меня в любую группу, чтобы получать актуальные новости!"
)

type Config struct {
	SourceText   string
	SourceDesc   string
	PrivateReply string
	ReplyTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.SourceText == "" {
		c.SourceText = DefaultSourceText
	}
	if c.SourceDesc == "" {
		c.SourceDesc = DefaultSourceDesc
	}
	if c.PrivateReply == "" {
		c.PrivateReply = DefaultPrivateReply
	}
	if c.ReplyTimeout <= 0 {
		c.ReplyTimeout = 15 * time.Second
	}
	return c
}

// Registry is the destination set the dispatcher maintains.
type Registry interface {
	Add(id int64) (bool, error)
	Remove(id int64) (bool, error)
	Len() int
}

type Deps struct {
	Sender   kit.TextSender
	Registry Registry
	// SelfID is the bot's user id. Zero accepts every membership update.
	SelfID int64
	// Username is the bot's @username, used to ignore /cmd@otherbot.
	Username string
	Bus      eventbus.Bus
	Log      logx.Logger
}

type Dispatcher struct {
	sender   kit.TextSender
	reg      Registry
	selfID   int64
	username string
	bus      eventbus.Bus
	log      logx.Logger

	mu  sync.RWMutex
	cfg Config

	jobs chan func(context.Context)
}

func New(cfg Config, d Deps) *Dispatcher {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if d.Bus == nil {
		d.Bus = eventbus.Nop()
	}
	return &Dispatcher{
		sender:   d.Sender,
		reg:      d.Registry,
		selfID:   d.SelfID,
		username: strings.TrimPrefix(strings.ToLower(d.Username), "@"),
		bus:      d.Bus,
		log:      d.Log,
		cfg:      cfg.withDefaults(),
		jobs:     make(chan func(context.Context), 64),
	}
}

// Apply swaps reply texts (config reload).
func (d *Dispatcher) Apply(cfg Config) {
	d.mu.Lock()
	d.cfg = cfg.withDefaults()
	d.mu.Unlock()
}

func (d *Dispatcher) config() Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

// MenuCommands is the command menu published to the platform.
func (d *Dispatcher) MenuCommands() []kit.BotCommand {
	return []kit.BotCommand{{Command: "code", Description: d.config().SourceDesc}}
}

// DispatchLoop consumes updates until ctx is done or updates is closed.
// Membership changes are applied in arrival order on this goroutine;
// replies are sent by a small worker pool so a slow send never delays
// registry updates.
func (d *Dispatcher) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	const workers = 2

	sup := rtsup.New(ctx,
		rtsup.WithLogger(d.log.With(logx.String("comp", "commands.workers"))),
		rtsup.WithCancelOnError(false),
	)
	for i := 0; i < workers; i++ {
		idx := i
		sup.GoRestart("reply.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-d.jobs:
					if !ok {
						return nil
					}
					func() {
						defer func() {
							if r := recover(); r != nil {
								d.log.Error("panic in reply job", logx.Int("worker", idx), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
							}
						}()
						job(c)
					}()
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithStopOnCleanExit(true),
		)
	}

	d.log.Info("update dispatcher started", logx.Int("workers", workers))
	defer func() {
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		d.log.Info("update dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			d.Handle(ctx, up)
		}
	}
}

// Handle routes one update. Replies are queued; when the queue is full the
// reply is dropped with a warning.
func (d *Dispatcher) Handle(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMembership:
		if up.Membership != nil {
			d.handleMembership(*up.Membership)
		}
	case kit.UpdateMessage:
		if up.Message != nil {
			d.handleMessage(ctx, *up.Message)
		}
	}
}

func (d *Dispatcher) handleMembership(m kit.Membership) {
	if d.selfID != 0 && m.UserID != d.selfID {
		return
	}
	log := d.log.With(logx.Int64("chat_id", m.ChatID), logx.String("chat_kind", string(m.ChatKind)))
	if !m.ChatKind.IsGroup() {
		log.Debug("membership change ignored for non-group chat")
		return
	}

	switch {
	case m.Joined():
		added, err := d.reg.Add(m.ChatID)
		if err != nil {
			log.Error("persist destinations failed", logx.Err(err))
		}
		if !added {
			return
		}
		metrics.IncMembership("join")
		metrics.SetDestinations(d.reg.Len())
		d.bus.Publish(eventbus.Event{Type: eventbus.TypeDestinationAdded, Data: m.ChatID})
		log.Info("bot added to chat", logx.String("title", m.ChatTitle), logx.Int64("by", m.ActorID))
	case m.Left():
		removed, err := d.reg.Remove(m.ChatID)
		if err != nil {
			log.Error("persist destinations failed", logx.Err(err))
		}
		if !removed {
			return
		}
		metrics.IncMembership("leave")
		metrics.SetDestinations(d.reg.Len())
		d.bus.Publish(eventbus.Event{Type: eventbus.TypeDestinationRemoved, Data: m.ChatID})
		log.Info("bot removed from chat", logx.String("title", m.ChatTitle), logx.Int64("by", m.ActorID))
	}
}

func (d *Dispatcher) handleMessage(ctx context.Context, msg kit.Message) {
	cfg := d.config()
	to := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}

	if cmd, ok := d.command(msg.Text); ok {
		if cmd == "code" {
			d.reply(ctx, cfg, to, cfg.SourceText, "source link")
			return
		}
	}
	if msg.ChatKind == kit.ChatPrivate {
		d.reply(ctx, cfg, to, cfg.PrivateReply, "private reply")
	}
}

// command extracts "code" from "/code", "/code@bot args". Commands
// addressed to another bot are rejected.
func (d *Dispatcher) command(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	word, _, _ := strings.Cut(text[1:], " ")
	word, target, hasTarget := strings.Cut(word, "@")
	if hasTarget && d.username != "" && !strings.EqualFold(target, d.username) {
		return "", false
	}
	return strings.ToLower(word), word != ""
}

func (d *Dispatcher) reply(ctx context.Context, cfg Config, to kit.ChatTarget, text, what string) {
	job := func(c context.Context) {
		sctx, cancel := context.WithTimeout(c, cfg.ReplyTimeout)
		defer cancel()
		if _, err := d.sender.SendText(sctx, to, text, nil); err != nil {
			d.log.Error("send "+what+" failed", logx.Int64("chat_id", to.ChatID), logx.Err(err))
			return
		}
		d.log.Info("sent "+what, logx.Int64("chat_id", to.ChatID))
	}
	select {
	case d.jobs <- job:
	case <-ctx.Done():
	default:
		d.log.Warn("reply queue full; dropping", logx.Int64("chat_id", to.ChatID), logx.String("what", what))
	}
}
