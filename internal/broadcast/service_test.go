package broadcast

import (
	"context"
	"errors"
	"html"
	"regexp"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"newsrelay/internal/news"
	"newsrelay/internal/transport"
	"newsrelay/pkg/logx"
)

type sent struct {
	chatID int64
	photo  transport.Photo
	opt    *transport.SendOptions
}

type fakeSender struct {
	mu     sync.Mutex
	sent   []sent
	failOn map[int64]error
	onSend func()
}

func (f *fakeSender) SendPhoto(ctx context.Context, to transport.ChatTarget, p transport.Photo, opt *transport.SendOptions) (transport.MessageRef, error) {
	if f.onSend != nil {
		f.onSend()
	}
	if err := ctx.Err(); err != nil {
		return transport.MessageRef{}, err
	}
	if err := f.failOn[to.ChatID]; err != nil {
		return transport.MessageRef{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{chatID: to.ChatID, photo: p, opt: opt})
	return transport.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeSender) to(chatID int64) []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sent
	for _, s := range f.sent {
		if s.chatID == chatID {
			out = append(out, s)
		}
	}
	return out
}

var items = []news.Item{
	{ID: 7, Title: "Open day", RawDate: "2024-05-15 00:00:00+03"},
	{ID: 8, Title: "Exams & grades", RawDate: "2024-05-16 00:00:00+03"},
}

func TestBroadcastDeliversEveryPair(t *testing.T) {
	t.Parallel()
	fs := &fakeSender{}
	svc := New(Config{ImageURL: "https://example.org/logo.png"}, fs, logx.Nop())

	rep := svc.Broadcast(context.Background(), items, []int64{-1, -2})
	if rep.Attempted != 4 || rep.Delivered != 4 || rep.Failed() != 0 {
		t.Fatalf("report = %+v", rep)
	}
	for _, chat := range []int64{-1, -2} {
		got := fs.to(chat)
		if len(got) != 2 {
			t.Fatalf("chat %d got %d messages", chat, len(got))
		}
		if !strings.Contains(got[0].photo.Caption, "Open day") || !strings.Contains(got[1].photo.Caption, "Exams &amp; grades") {
			t.Fatalf("chat %d received items out of order: %q / %q", chat, got[0].photo.Caption, got[1].photo.Caption)
		}
		if got[0].photo.URL != "https://example.org/logo.png" {
			t.Fatalf("photo url = %q", got[0].photo.URL)
		}
		links := got[0].opt.Links
		if len(links) != 1 || links[0].Text != DefaultButtonText || links[0].URL != "https://stankin.ru/news/item_7" {
			t.Fatalf("links = %+v", links)
		}
		if got[0].opt.ParseMode != "HTML" {
			t.Fatalf("parse mode = %q", got[0].opt.ParseMode)
		}
	}
}

func TestBroadcastIsolatesFailures(t *testing.T) {
	t.Parallel()
	fs := &fakeSender{failOn: map[int64]error{-1: errors.New("bot was kicked")}}
	svc := New(Config{}, fs, logx.Nop())

	rep := svc.Broadcast(context.Background(), items, []int64{-1, -2})
	if rep.Delivered != 2 || rep.Failed() != 2 || rep.Attempted != 4 {
		t.Fatalf("report = %+v", rep)
	}
	if len(fs.to(-2)) != 2 {
		t.Fatal("healthy destination must still receive every item")
	}
	for _, f := range rep.Failures {
		if f.ChatID != -1 {
			t.Fatalf("unexpected failure %+v", f)
		}
	}
}

func TestBroadcastStopsOnCancel(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	fs := &fakeSender{}
	fs.onSend = func() {
		calls++
		if calls == 1 {
			cancel()
		}
	}
	rep := New(Config{}, fs, logx.Nop()).Broadcast(ctx, items, []int64{-1, -2, -3})
	if !rep.Canceled {
		t.Fatal("expected canceled report")
	}
	if rep.Attempted != 1 {
		t.Fatalf("attempted = %d, want 1", rep.Attempted)
	}
}

func TestBroadcastNothingToDo(t *testing.T) {
	t.Parallel()
	fs := &fakeSender{}
	svc := New(Config{}, fs, logx.Nop())
	if rep := svc.Broadcast(context.Background(), items, nil); rep.Attempted != 0 {
		t.Fatalf("report = %+v", rep)
	}
	if rep := svc.Broadcast(context.Background(), nil, []int64{1}); rep.Attempted != 0 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestCaption(t *testing.T) {
	t.Parallel()
	it := news.Item{ID: 3, Title: `A <b>"quoted"</b>`, RawDate: "2024-05-14 00:00:00+03"}
	got := Caption(it, "https://stankin.ru/news/item_3", "")
	want := "<a href=\"https://stankin.ru/news/item_3\"><b>A &lt;b&gt;&#34;quoted&#34;&lt;/b&gt;</b></a>\n\n🗓 14.05.2024"
	if got != want {
		t.Fatalf("Caption =\n%q\nwant\n%q", got, want)
	}
}

func TestCaptionShortensLongTitle(t *testing.T) {
	t.Parallel()
	it := news.Item{ID: 9, Title: strings.Repeat("Новость & ", 130), RawDate: "2024-05-14 00:00:00+03"}
	got := Caption(it, "https://stankin.ru/news/item_9", "")

	if !strings.HasSuffix(got, "…</b></a>\n\n🗓 14.05.2024") {
		t.Fatalf("caption lost its closing tags or date line: ...%q", got[len(got)-60:])
	}
	if !strings.HasPrefix(got, `<a href="https://stankin.ru/news/item_9"><b>Новость &amp; `) {
		t.Fatalf("caption head = %q", got[:60])
	}
	visible := html.UnescapeString(regexp.MustCompile(`<[^>]+>`).ReplaceAllString(got, ""))
	if n := utf8.RuneCountInString(visible); n != CaptionLimit {
		t.Fatalf("visible caption = %d runes, want %d", n, CaptionLimit)
	}
}
