package broadcast

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"newsrelay/internal/metrics"
	"newsrelay/internal/news"
	"newsrelay/internal/transport"
	"newsrelay/pkg/logx"
)

type Config struct {
	ImageURL    string
	URLTemplate string // fmt template with one %d for the item id
	ButtonText  string
	DateIcon    string
	RatePerSec  float64
	Burst       int
	SendTimeout time.Duration
}

// Failure records one failed delivery.
type Failure struct {
	ItemID int64
	ChatID int64
	Err    error
}

// Report summarizes one Broadcast call.
type Report struct {
	Items        int
	Destinations int
	Attempted    int
	Delivered    int
	Failures     []Failure
	Canceled     bool
	Duration     time.Duration
}

func (r Report) Failed() int { return len(r.Failures) }

type Service struct {
	sender transport.PhotoSender
	log    logx.Logger

	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
}

func New(cfg Config, sender transport.PhotoSender, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{sender: sender, log: log}
	s.Apply(cfg)
	return s
}

// Apply swaps texts and pacing. Safe while a broadcast is running; the
// running broadcast keeps the snapshot it started with.
func (s *Service) Apply(cfg Config) {
	if cfg.ButtonText == "" {
		cfg.ButtonText = DefaultButtonText
	}
	if cfg.URLTemplate == "" {
		cfg.URLTemplate = news.DefaultURLTemplate
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	var lim *rate.Limiter
	if cfg.RatePerSec > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}

	s.mu.Lock()
	s.cfg = cfg
	s.limiter = lim
	s.mu.Unlock()
}

func (s *Service) snapshot() (Config, *rate.Limiter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg, s.limiter
}

// Broadcast delivers every item to every destination. Items go out in batch
// order, so each destination sees them in that order. A failed pair is
// logged and skipped; only ctx cancellation stops the run early.
func (s *Service) Broadcast(ctx context.Context, items []news.Item, destinations []int64) Report {
	start := time.Now()
	cfg, lim := s.snapshot()
	rep := Report{Items: len(items), Destinations: len(destinations)}
	if len(items) == 0 || len(destinations) == 0 {
		if len(items) > 0 {
			s.log.Warn("no destinations registered; news not delivered", logx.Int("items", len(items)))
		}
		return rep
	}

	s.log.Info("broadcast started", logx.Int("items", len(items)), logx.Int("destinations", len(destinations)))

outer:
	for _, it := range items {
		url := it.URL(cfg.URLTemplate)
		photo := transport.Photo{URL: cfg.ImageURL, Caption: Caption(it, url, cfg.DateIcon)}
		opt := &transport.SendOptions{
			ParseMode: "HTML",
			Links:     []transport.LinkButton{{Text: cfg.ButtonText, URL: url}},
		}
		for _, chatID := range destinations {
			if ctx.Err() != nil {
				rep.Canceled = true
				break outer
			}
			if lim != nil {
				if err := lim.Wait(ctx); err != nil {
					rep.Canceled = true
					break outer
				}
			}
			rep.Attempted++
			err := s.sendOne(ctx, cfg, chatID, photo, opt)
			metrics.ObserveDelivery(err == nil)
			if err != nil {
				if errors.Is(err, context.Canceled) && ctx.Err() != nil {
					rep.Canceled = true
					rep.Failures = append(rep.Failures, Failure{ItemID: it.ID, ChatID: chatID, Err: err})
					break outer
				}
				rep.Failures = append(rep.Failures, Failure{ItemID: it.ID, ChatID: chatID, Err: err})
				s.log.Warn("send news failed",
					logx.Int64("chat_id", chatID),
					logx.Int64("news_id", it.ID),
					logx.Err(err),
				)
				continue
			}
			rep.Delivered++
			s.log.Info("sent news", logx.Int64("chat_id", chatID), logx.Int64("news_id", it.ID), logx.String("title", it.Title))
		}
	}
	rep.Duration = time.Since(start)

	fields := []logx.Field{
		logx.Int("attempted", rep.Attempted),
		logx.Int("delivered", rep.Delivered),
		logx.Int("failed", rep.Failed()),
		logx.Bool("canceled", rep.Canceled),
		logx.Duration("dur", rep.Duration),
	}
	if rep.Failed() > 0 || rep.Canceled {
		s.log.Warn("broadcast finished with failures", fields...)
	} else {
		s.log.Info("broadcast finished", fields...)
	}
	return rep
}

func (s *Service) sendOne(ctx context.Context, cfg Config, chatID int64, photo transport.Photo, opt *transport.SendOptions) error {
	sctx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	defer cancel()
	_, err := s.sender.SendPhoto(sctx, transport.ChatTarget{ChatID: chatID}, photo, opt)
	return err
}
