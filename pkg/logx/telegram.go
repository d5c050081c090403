package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"newsrelay/internal/transport"
	"newsrelay/pkg/tgui"
)

const (
	telegramQueueSize = 256
	telegramMaxLen    = 3500
)

type telegramItem struct {
	to  transport.ChatTarget
	msg string
}

// telegramSink is a zerolog.LevelWriter that forwards records to a chat.
// Writes never block: records are dropped when the queue is full or the
// limiter says no.
type telegramSink struct {
	sender transport.TextSender
	queue  chan telegramItem

	mu       sync.Mutex
	target   transport.ChatTarget
	minLevel zerolog.Level
	limiter  *rate.Limiter

	runMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newTelegramSink(sender transport.TextSender) *telegramSink {
	return &telegramSink{
		sender:   sender,
		queue:    make(chan telegramItem, telegramQueueSize),
		minLevel: zerolog.WarnLevel,
		limiter:  rate.NewLimiter(1, 1),
	}
}

func (t *telegramSink) apply(cfg TelegramConfig) {
	rps := cfg.RatePerSec
	if rps < 1 {
		rps = 1
	}
	t.mu.Lock()
	t.target = transport.ChatTarget{ChatID: cfg.ChatID, ThreadID: cfg.ThreadID}
	t.minLevel = ParseLevel(cfg.MinLevel, zerolog.WarnLevel)
	t.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	t.mu.Unlock()
}

func (t *telegramSink) setSender(sender transport.TextSender) {
	t.mu.Lock()
	t.sender = sender
	t.mu.Unlock()
}

func (t *telegramSink) start() {
	t.runMu.Lock()
	defer t.runMu.Unlock()
	t.mu.Lock()
	sender := t.sender
	t.mu.Unlock()
	if t.cancel != nil || sender == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case it := <-t.queue:
				_, _ = sender.SendText(ctx, it.to, it.msg, &transport.SendOptions{DisablePreview: true})
			}
		}
	}()
}

func (t *telegramSink) stop() {
	t.runMu.Lock()
	cancel := t.cancel
	t.cancel = nil
	t.runMu.Unlock()
	if cancel != nil {
		cancel()
		t.wg.Wait()
	}
}

func (t *telegramSink) Write(p []byte) (int, error) {
	return t.WriteLevel(zerolog.InfoLevel, p)
}

func (t *telegramSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	t.mu.Lock()
	to := t.target
	minLevel := t.minLevel
	lim := t.limiter
	sender := t.sender
	t.mu.Unlock()

	if to.ChatID == 0 || sender == nil || level < minLevel || !lim.Allow() {
		return len(p), nil
	}
	msg := formatRecord(p)
	if msg == "" {
		return len(p), nil
	}
	select {
	case t.queue <- telegramItem{to: to, msg: msg}:
	default:
	}
	return len(p), nil
}

// formatRecord renders a zerolog JSON line as "[LEVEL] message" followed by
// sorted "- key=value" lines.
func formatRecord(p []byte) string {
	var m map[string]any
	if err := json.Unmarshal(p, &m); err != nil {
		return tgui.TruncRunes(strings.TrimSpace(string(p)), telegramMaxLen)
	}

	lvl, _ := m[zerolog.LevelFieldName].(string)
	msg, _ := m[zerolog.MessageFieldName].(string)

	var b strings.Builder
	if lvl != "" {
		b.WriteString("[" + strings.ToUpper(lvl) + "] ")
	}
	b.WriteString(msg)

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName:
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString("\n- ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(tgui.TruncRunes(fmt.Sprint(m[k]), 600))
	}
	return tgui.TruncRunes(b.String(), telegramMaxLen)
}
