package app

import (
	"time"

	"newsrelay/internal/broadcast"
	"newsrelay/internal/commands"
	"newsrelay/internal/config"
	"newsrelay/internal/news"
	"newsrelay/internal/observability"
	"newsrelay/internal/relay"
	"newsrelay/pkg/logx"
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
			Dir:     cfg.Logging.File.Dir,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ChatID:     cfg.Logging.Telegram.ChatID,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapNewsRequest(cfg *config.Config) (news.Request, error) {
	timeout, err := config.ParseDurationOrDefault("news.request.timeout", cfg.News.Request.Timeout, 15*time.Second)
	if err != nil {
		return news.Request{}, err
	}
	return news.Request{
		URL:     cfg.News.Request.URL,
		Method:  cfg.News.Request.Method,
		Headers: cfg.News.Request.Headers,
		Payload: cfg.News.Request.Data,
		Timeout: timeout,
	}, nil
}

func mapSchedule(cfg *config.Config) (relay.Spec, error) {
	return relay.ParseSchedule(cfg.News.Schedule)
}

func mapBroadcastConfig(cfg *config.Config) (broadcast.Config, error) {
	sendTimeout, err := config.ParseDurationOrDefault("broadcast.send_timeout", cfg.Broadcast.SendTimeout, 30*time.Second)
	if err != nil {
		return broadcast.Config{}, err
	}
	rps := cfg.Broadcast.RatePerSec
	if rps == 0 {
		// Telegram allows roughly 30 messages per second across chats.
		rps = 20
	}
	return broadcast.Config{
		ImageURL:    cfg.Broadcast.ImageURL,
		URLTemplate: cfg.News.ItemURLTemplate,
		ButtonText:  cfg.Broadcast.ButtonText,
		DateIcon:    cfg.Broadcast.DateIcon,
		RatePerSec:  rps,
		Burst:       cfg.Broadcast.Burst,
		SendTimeout: sendTimeout,
	}, nil
}

func mapCommandsConfig(cfg *config.Config) commands.Config {
	return commands.Config{
		SourceText:   cfg.Messages.SourceText,
		SourceDesc:   cfg.Messages.SourceDescription,
		PrivateReply: cfg.Messages.PrivateReply,
	}
}

func mapObservabilityConfig(cfg *config.Config) (observability.Config, error) {
	o := cfg.Observability
	read, err := config.ParseDurationOrDefault("observability.read_timeout", o.ReadTimeout, 10*time.Second)
	if err != nil {
		return observability.Config{}, err
	}
	// WriteTimeout stays 0 by default so /debug/pprof/profile (30s+) works.
	write, err := config.ParseDurationField("observability.write_timeout", o.WriteTimeout)
	if err != nil {
		return observability.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("observability.idle_timeout", o.IdleTimeout, 60*time.Second)
	if err != nil {
		return observability.Config{}, err
	}
	return observability.Config{
		Enabled:       o.Enabled,
		Addr:          o.Addr,
		Token:         o.Token,
		AllowInsecure: o.AllowInsecure,
		Pprof:         o.Pprof,
		PprofPrefix:   o.PprofPrefix,
		ReadTimeout:   read,
		WriteTimeout:  write,
		IdleTimeout:   idle,
	}, nil
}

// validateMapped runs every mapper so a reload that parses but cannot be
// applied is rejected before commit.
func validateMapped(cfg *config.Config) error {
	if _, err := mapNewsRequest(cfg); err != nil {
		return err
	}
	if _, err := mapSchedule(cfg); err != nil {
		return err
	}
	if _, err := mapBroadcastConfig(cfg); err != nil {
		return err
	}
	_, err := mapObservabilityConfig(cfg)
	return err
}
