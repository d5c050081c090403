package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"newsrelay/internal/relay"
)

// Validate checks everything that can be checked without other packages.
// The token is checked separately by RequireToken because offline commands
// run without it.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	u, err := url.Parse(strings.TrimSpace(c.News.Request.URL))
	switch {
	case strings.TrimSpace(c.News.Request.URL) == "":
		add("news.request.url is required")
	case err != nil:
		add("news.request.url: %w", err)
	case u.Scheme != "http" && u.Scheme != "https":
		add("news.request.url: scheme must be http or https, got %q", u.Scheme)
	}
	switch strings.ToUpper(c.News.Request.Method) {
	case "", "GET", "POST":
	default:
		add("news.request.method: want GET or POST, got %q", c.News.Request.Method)
	}
	if _, err := relay.ParseSchedule(c.News.Schedule); err != nil {
		add("news.schedule: %w", err)
	}
	if tmpl := c.News.ItemURLTemplate; tmpl != "" && strings.Count(tmpl, "%d") != 1 {
		add("news.item_url_template must contain exactly one %%d")
	}

	durations := map[string]string{
		"telegram.poll_timeout":       c.Telegram.PollTimeout,
		"news.request.timeout":        c.News.Request.Timeout,
		"broadcast.send_timeout":      c.Broadcast.SendTimeout,
		"observability.read_timeout":  c.Observability.ReadTimeout,
		"observability.write_timeout": c.Observability.WriteTimeout,
		"observability.idle_timeout":  c.Observability.IdleTimeout,
	}
	for path, raw := range durations {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}

	if c.Broadcast.RatePerSec < 0 {
		add("broadcast.rate_per_sec must be >= 0")
	}
	if c.Broadcast.Burst < 0 {
		add("broadcast.burst must be >= 0")
	}
	if strings.TrimSpace(c.Broadcast.ImageURL) == "" {
		add("broadcast.image_url is required")
	}
	if c.Logging.Telegram.Enabled && c.Logging.Telegram.ChatID == 0 {
		add("logging.telegram.chat_id is required when logging.telegram.enabled")
	}
	if strings.TrimSpace(c.Storage.DestinationsFile) == "" || strings.TrimSpace(c.Storage.WatermarkFile) == "" {
		add("storage.destinations_file and storage.watermark_file are required")
	} else if c.Storage.DestinationsFile == c.Storage.WatermarkFile {
		add("storage.destinations_file and storage.watermark_file must differ")
	}
	return errors.Join(errs...)
}

// RequireToken reports a missing bot token.
func (c *Config) RequireToken() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is empty and %s is not set", TokenEnv)
	}
	return nil
}
