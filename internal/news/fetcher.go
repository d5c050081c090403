package news

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"newsrelay/internal/metrics"
	"newsrelay/pkg/logx"
)

const maxBodyBytes = 8 << 20

// Request describes the call to the news endpoint.
type Request struct {
	URL     string
	Method  string // default POST
	Headers map[string]string
	Payload json.RawMessage // sent as the JSON body when non-empty
	Timeout time.Duration   // default 15s
}

// Watermark is the subset of watermark.Store the fetcher needs.
type Watermark interface {
	Get() int64
	Advance(id int64) (bool, error)
}

type Option func(*Fetcher)

// WithHTTPClient replaces the default client. Request.Timeout still applies
// per call through the context.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		if c != nil {
			f.client = c
		}
	}
}

type Fetcher struct {
	client *http.Client
	wm     Watermark
	log    logx.Logger

	mu  sync.RWMutex
	req Request
}

func NewFetcher(req Request, wm Watermark, log logx.Logger, opts ...Option) *Fetcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	f := &Fetcher{
		client: &http.Client{},
		wm:     wm,
		log:    log,
		req:    req,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// SetRequest swaps the request used by subsequent fetches (config reload).
func (f *Fetcher) SetRequest(req Request) {
	f.mu.Lock()
	f.req = req
	f.mu.Unlock()
}

func (f *Fetcher) request() Request {
	f.mu.RLock()
	defer f.mu.RUnlock()
	r := f.req
	if r.Method == "" {
		r.Method = http.MethodPost
	}
	if r.Timeout <= 0 {
		r.Timeout = 15 * time.Second
	}
	return r
}

// Peek performs one request and returns every item in the response,
// leaving the watermark alone.
func (f *Fetcher) Peek(ctx context.Context) ([]Item, error) {
	r := f.request()
	if strings.TrimSpace(r.URL) == "" {
		return nil, fmt.Errorf("news: request url is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	var body io.Reader
	if len(r.Payload) > 0 {
		body = bytes.NewReader(r.Payload)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, body)
	if err != nil {
		return nil, fmt.Errorf("news: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("news: request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("news: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("news: unexpected status %d", resp.StatusCode)
	}
	items, err := decodeItems(raw)
	if err != nil {
		return nil, fmt.Errorf("news: %w", err)
	}
	return items, nil
}

// FetchNew returns the items newer than the watermark and advances the
// watermark to their max id before returning. Any failure is logged and
// reported as an empty batch.
func (f *Fetcher) FetchNew(ctx context.Context) []Item {
	items, err := f.Peek(ctx)
	metrics.ObserveFetch(err == nil)
	if err != nil {
		if ctx.Err() == nil {
			f.log.Error("fetch news failed", logx.Err(err))
		}
		return nil
	}

	wm := f.wm.Get()
	fresh, maxID := FilterNew(items, wm)
	if len(fresh) == 0 {
		f.log.Info("no new news", logx.Int("received", len(items)), logx.Int64("last_news_id", wm))
		return nil
	}

	if _, err := f.wm.Advance(maxID); err != nil {
		f.log.Error("persist watermark failed", logx.Err(err), logx.Int64("last_news_id", maxID))
	}
	metrics.AddNewItems(len(fresh))
	metrics.SetWatermark(f.wm.Get())

	f.log.Info("fetched new news",
		logx.Int("count", len(fresh)),
		logx.Int64("from", wm),
		logx.Int64("to", maxID),
	)
	return fresh
}
