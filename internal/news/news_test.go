package news

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"newsrelay/pkg/logx"
)

type memWatermark struct {
	mu  sync.Mutex
	cur int64
}

func (m *memWatermark) Get() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur
}

func (m *memWatermark) Advance(id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id <= m.cur {
		return false, nil
	}
	m.cur = id
	return true, nil
}

func newsServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

const twoItems = `{"data":{"news":[
	{"id":7,"title":"Second","date":"2024-05-15 00:00:00+03"},
	{"id":5,"title":"First","date":"2024-05-14 00:00:00+03"}
]}}`

func TestFetchNewOnlyAboveWatermark(t *testing.T) {
	t.Parallel()
	srv := newsServer(t, http.StatusOK, twoItems)
	wm := &memWatermark{cur: 5}
	f := NewFetcher(Request{URL: srv.URL}, wm, logx.Nop())

	got := f.FetchNew(context.Background())
	if len(got) != 1 || got[0].ID != 7 {
		t.Fatalf("FetchNew = %+v, want only id 7", got)
	}
	if wm.Get() != 7 {
		t.Fatalf("watermark = %d, want 7", wm.Get())
	}

	// Same batch again: nothing new, watermark unchanged.
	if got := f.FetchNew(context.Background()); len(got) != 0 {
		t.Fatalf("second FetchNew = %+v, want empty", got)
	}
	if wm.Get() != 7 {
		t.Fatalf("watermark = %d, want 7", wm.Get())
	}
}

func TestFetchNewPreservesResponseOrder(t *testing.T) {
	t.Parallel()
	srv := newsServer(t, http.StatusOK, twoItems)
	wm := &memWatermark{}
	got := NewFetcher(Request{URL: srv.URL}, wm, logx.Nop()).FetchNew(context.Background())
	if len(got) != 2 || got[0].ID != 7 || got[1].ID != 5 {
		t.Fatalf("FetchNew = %+v", got)
	}
	if wm.Get() != 7 {
		t.Fatalf("watermark = %d, want max id 7", wm.Get())
	}
}

func TestFetchNewErrorsYieldEmpty(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, twoItems},
		{"not found", http.StatusNotFound, ""},
		{"bad json", http.StatusOK, `{"data":`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := newsServer(t, tc.status, tc.body)
			wm := &memWatermark{cur: 1}
			got := NewFetcher(Request{URL: srv.URL}, wm, logx.Nop()).FetchNew(context.Background())
			if len(got) != 0 {
				t.Fatalf("FetchNew = %+v, want empty", got)
			}
			if wm.Get() != 1 {
				t.Fatalf("watermark moved to %d", wm.Get())
			}
		})
	}
}

func TestFetchNewUnreachable(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	wm := &memWatermark{}
	if got := NewFetcher(Request{URL: url, Timeout: time.Second}, wm, logx.Nop()).FetchNew(context.Background()); len(got) != 0 {
		t.Fatalf("FetchNew = %+v, want empty", got)
	}
}

func TestPeekSendsConfiguredRequest(t *testing.T) {
	t.Parallel()
	type seen struct {
		method string
		header string
		body   map[string]any
	}
	seenCh := make(chan seen, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := seen{method: r.Method, header: r.Header.Get("X-Test")}
		_ = json.NewDecoder(r.Body).Decode(&s.body)
		seenCh <- s
		_, _ = io.WriteString(w, twoItems)
	}))
	defer srv.Close()

	wm := &memWatermark{cur: 100}
	f := NewFetcher(Request{
		URL:     srv.URL,
		Headers: map[string]string{"X-Test": "yes"},
		Payload: json.RawMessage(`{"page":1,"count":25}`),
	}, wm, logx.Nop())

	items, err := f.Peek(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("Peek returned %d items", len(items))
	}
	got := <-seenCh
	if got.method != http.MethodPost || got.header != "yes" || got.body["count"] != float64(25) {
		t.Fatalf("request = %s %q %v", got.method, got.header, got.body)
	}
	if wm.Get() != 100 {
		t.Fatal("Peek must not touch the watermark")
	}
}

func TestFilterNew(t *testing.T) {
	t.Parallel()
	items := []Item{{ID: 5}, {ID: 7}}
	fresh, maxID := FilterNew(items, 5)
	if len(fresh) != 1 || fresh[0].ID != 7 || maxID != 7 {
		t.Fatalf("FilterNew = %+v, %d", fresh, maxID)
	}
	if fresh, maxID := FilterNew(items, 7); len(fresh) != 0 || maxID != 0 {
		t.Fatalf("FilterNew at max = %+v, %d", fresh, maxID)
	}
}

func TestItemDateAndURL(t *testing.T) {
	t.Parallel()
	cases := []struct {
		raw  string
		want string
	}{
		{"2024-05-14 00:00:00+03", "14.05.2024"},
		{"2024-12-31 23:30:00+03", "31.12.2024"},
		{"2024-01-02", "02.01.2024"},
		{"garbage", "garbage"},
	}
	for _, tc := range cases {
		it := Item{ID: 1, RawDate: tc.raw, Published: parseDate(tc.raw)}
		if got := it.Date(); got != tc.want {
			t.Errorf("Date(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
	if got := (Item{ID: 42}).URL(""); got != "https://stankin.ru/news/item_42" {
		t.Fatalf("URL = %q", got)
	}
}
