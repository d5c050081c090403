// Package relay runs the poll loop: fetch new items, broadcast them, sleep
// until the next scheduled tick.
package relay

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"newsrelay/internal/broadcast"
	"newsrelay/internal/eventbus"
	"newsrelay/internal/metrics"
	"newsrelay/internal/news"
	"newsrelay/pkg/logx"
)

type Fetcher interface {
	FetchNew(ctx context.Context) []news.Item
}

type Broadcaster interface {
	Broadcast(ctx context.Context, items []news.Item, destinations []int64) broadcast.Report
}

type Destinations interface {
	List() []int64
}

// TickResult is published as the data of eventbus.TypeBroadcastFinished.
type TickResult struct {
	ID       string
	Items    []news.Item
	Report   broadcast.Report
	Duration time.Duration
}

type Loop struct {
	fetcher Fetcher
	bc      Broadcaster
	dests   Destinations
	bus     eventbus.Bus
	log     logx.Logger
	now     func() time.Time

	mu      sync.Mutex
	sched   Schedule
	resched chan struct{}
}

func New(sched Schedule, f Fetcher, b Broadcaster, d Destinations, bus eventbus.Bus, log logx.Logger) *Loop {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	return &Loop{
		fetcher: f,
		bc:      b,
		dests:   d,
		bus:     bus,
		log:     log,
		now:     time.Now,
		sched:   sched,
		resched: make(chan struct{}, 1),
	}
}

// SetSchedule replaces the schedule. A sleeping loop recomputes its wakeup
// immediately; a running tick is not interrupted.
func (l *Loop) SetSchedule(s Schedule) {
	if s == nil {
		return
	}
	l.mu.Lock()
	l.sched = s
	l.mu.Unlock()
	select {
	case l.resched <- struct{}{}:
	default:
	}
}

func (l *Loop) schedule() Schedule {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sched
}

// Run ticks once immediately, then on every scheduled time, until ctx is
// done. It returns nil on cancellation.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info("poll loop started")
	defer l.log.Info("poll loop stopped")

	for {
		l.Tick(ctx)

		last := l.now()
		for {
			next := l.schedule().Next(last)
			wait := next.Sub(l.now())
			if wait < 0 {
				wait = 0
			}
			l.log.Debug("next tick scheduled", logx.Time("at", next), logx.Duration("in", wait))

			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil
			case <-l.resched:
				t.Stop()
				continue
			case <-t.C:
			}
			break
		}
	}
}

// Tick runs one fetch and, when there is something new, one broadcast to a
// snapshot of the destination set.
func (l *Loop) Tick(ctx context.Context) TickResult {
	start := l.now()
	res := TickResult{ID: uuid.NewString()}
	log := l.log.With(logx.String("tick", res.ID))
	l.bus.Publish(eventbus.Event{Type: eventbus.TypeTick, Time: start, Data: res.ID})

	res.Items = l.fetcher.FetchNew(ctx)
	l.bus.Publish(eventbus.Event{Type: eventbus.TypeNewsFetched, Data: len(res.Items)})

	dests := l.dests.List()
	metrics.SetDestinations(len(dests))
	if len(res.Items) > 0 {
		log.Info("broadcasting new news", logx.Int("items", len(res.Items)), logx.Int("destinations", len(dests)))
		res.Report = l.bc.Broadcast(ctx, res.Items, dests)
	}

	res.Duration = time.Since(start)
	metrics.ObserveTick(res.Duration)
	if len(res.Items) > 0 {
		l.bus.Publish(eventbus.Event{Type: eventbus.TypeBroadcastFinished, Data: res})
	}
	log.Debug("tick finished", logx.Duration("dur", res.Duration))
	return res
}
