package relay

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"newsrelay/internal/broadcast"
	"newsrelay/internal/eventbus"
	"newsrelay/internal/news"
	"newsrelay/pkg/logx"
)

type every time.Duration

func (e every) Next(t time.Time) time.Time { return t.Add(time.Duration(e)) }

type scriptedFetcher struct {
	mu      sync.Mutex
	batches [][]news.Item
	calls   int
	called  chan struct{}
}

func (f *scriptedFetcher) FetchNew(context.Context) []news.Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []news.Item
	if f.calls < len(f.batches) {
		out = f.batches[f.calls]
	}
	f.calls++
	if f.called != nil {
		select {
		case f.called <- struct{}{}:
		default:
		}
	}
	return out
}

type call struct {
	items []int64
	dests []int64
}

type recordingBroadcaster struct {
	mu    sync.Mutex
	calls []call
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, items []news.Item, dests []int64) broadcast.Report {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := call{dests: slices.Clone(dests)}
	for _, it := range items {
		c.items = append(c.items, it.ID)
	}
	b.calls = append(b.calls, c)
	return broadcast.Report{Items: len(items), Destinations: len(dests), Attempted: len(items) * len(dests), Delivered: len(items) * len(dests)}
}

type staticDests struct {
	mu  sync.Mutex
	ids []int64
}

func (d *staticDests) List() []int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.ids)
}

func (d *staticDests) set(ids ...int64) {
	d.mu.Lock()
	d.ids = ids
	d.mu.Unlock()
}

func TestTickBroadcastsOnlyWhenSomethingIsNew(t *testing.T) {
	t.Parallel()
	f := &scriptedFetcher{batches: [][]news.Item{{{ID: 7}}, nil}}
	b := &recordingBroadcaster{}
	d := &staticDests{ids: []int64{-1}}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	l := New(every(time.Hour), f, b, d, bus, logx.Nop())
	res := l.Tick(context.Background())
	if res.ID == "" || len(res.Items) != 1 || res.Report.Delivered != 1 {
		t.Fatalf("first tick = %+v", res)
	}
	if res := l.Tick(context.Background()); len(res.Items) != 0 {
		t.Fatalf("second tick = %+v", res)
	}
	if len(b.calls) != 1 {
		t.Fatalf("broadcast calls = %d, want 1", len(b.calls))
	}

	var types []string
	for len(events) > 0 {
		types = append(types, (<-events).Type)
	}
	want := []string{
		eventbus.TypeTick, eventbus.TypeNewsFetched, eventbus.TypeBroadcastFinished,
		eventbus.TypeTick, eventbus.TypeNewsFetched,
	}
	if !slices.Equal(types, want) {
		t.Fatalf("events = %v, want %v", types, want)
	}
}

func TestTickUsesCurrentDestinations(t *testing.T) {
	t.Parallel()
	f := &scriptedFetcher{batches: [][]news.Item{{{ID: 1}}, {{ID: 2}}, {{ID: 3}}}}
	b := &recordingBroadcaster{}
	d := &staticDests{ids: []int64{-1, -2}}
	l := New(every(time.Hour), f, b, d, nil, logx.Nop())

	l.Tick(context.Background())
	d.set(-2) // -1 removed
	l.Tick(context.Background())
	d.set(-2, -1) // -1 re-added
	l.Tick(context.Background())

	want := [][]int64{{-1, -2}, {-2}, {-2, -1}}
	for i, c := range b.calls {
		if !slices.Equal(c.dests, want[i]) {
			t.Fatalf("tick %d destinations = %v, want %v", i, c.dests, want[i])
		}
	}
}

func TestRunTicksImmediatelyThenOnSchedule(t *testing.T) {
	t.Parallel()
	f := &scriptedFetcher{called: make(chan struct{}, 1)}
	l := New(every(10*time.Millisecond), f, &recordingBroadcaster{}, &staticDests{}, nil, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	for i := 0; i < 3; i++ {
		select {
		case <-f.called:
		case <-time.After(2 * time.Second):
			t.Fatalf("tick %d did not happen", i+1)
		}
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSetScheduleWakesSleepingLoop(t *testing.T) {
	t.Parallel()
	f := &scriptedFetcher{called: make(chan struct{}, 1)}
	l := New(every(time.Hour), f, &recordingBroadcaster{}, &staticDests{}, nil, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Run(ctx) }()

	select {
	case <-f.called:
	case <-time.After(2 * time.Second):
		t.Fatal("first tick did not happen")
	}
	l.SetSchedule(every(5 * time.Millisecond))
	select {
	case <-f.called:
	case <-time.After(2 * time.Second):
		t.Fatal("loop kept sleeping on the old schedule")
	}
}
