package config

import (
	"encoding/json"
	"os"
	"strings"
)

// TokenEnv supplies telegram.token when the file leaves it empty.
const TokenEnv = "BOT_TOKEN"

type Config struct {
	Telegram      TelegramConfig      `json:"telegram"`
	Logging       LoggingConfig       `json:"logging"`
	News          NewsConfig          `json:"news"`
	Broadcast     BroadcastConfig     `json:"broadcast"`
	Storage       StorageConfig       `json:"storage"`
	Messages      MessagesConfig      `json:"messages"`
	Observability ObservabilityConfig `json:"observability"`
}

type TelegramConfig struct {
	// Token may be empty here and supplied through BOT_TOKEN.
	Token string `json:"token,omitempty"`
	// PollTimeout is a Go duration string (e.g. "30s").
	PollTimeout string `json:"poll_timeout,omitempty"`
	// APIURL points at a self-hosted Bot API server.
	APIURL string `json:"api_url,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

// LoggingFile selects the JSON file sink. With only dir set, a new file
// named after the start time is created in it on every start.
type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
	Dir     string `json:"dir,omitempty"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id"`
	ThreadID   int    `json:"thread_id,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// NewsConfig describes the upstream endpoint and the poll schedule.
//
// Schedule accepts a Go duration ("10m"), HH:MM ("00:10") or a cron
// expression ("*/10 * * * *").
type NewsConfig struct {
	Request         RequestConfig `json:"request"`
	Schedule        string        `json:"schedule"`
	ItemURLTemplate string        `json:"item_url_template,omitempty"`
}

type RequestConfig struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	// Data is sent verbatim as the JSON request body.
	Data    json.RawMessage `json:"data,omitempty"`
	Timeout string          `json:"timeout,omitempty"`
}

type BroadcastConfig struct {
	ImageURL    string  `json:"image_url"`
	ButtonText  string  `json:"button_text,omitempty"`
	DateIcon    string  `json:"date_icon,omitempty"`
	RatePerSec  float64 `json:"rate_per_sec,omitempty"`
	Burst       int     `json:"burst,omitempty"`
	SendTimeout string  `json:"send_timeout,omitempty"`
}

// StorageConfig holds the flat state files. Changing them needs a restart.
type StorageConfig struct {
	DestinationsFile string `json:"destinations_file"`
	WatermarkFile    string `json:"watermark_file"`
}

type MessagesConfig struct {
	SourceText        string `json:"source_text,omitempty"`
	SourceDescription string `json:"source_description,omitempty"`
	PrivateReply      string `json:"private_reply,omitempty"`
}

// ObservabilityConfig controls the /healthz, /metrics and pprof listener.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:9464").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type ObservabilityConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"` // bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
	PprofPrefix   string `json:"pprof_prefix,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

const (
	DefaultSchedule         = "10m"
	DefaultDestinationsFile = "./data/groups.json"
	DefaultWatermarkFile    = "./data/last_news_id.json"
)

// ApplyDefaults fills fields whose zero value is not usable.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if strings.TrimSpace(c.News.Schedule) == "" {
		c.News.Schedule = DefaultSchedule
	}
	if strings.TrimSpace(c.News.Request.Method) == "" {
		c.News.Request.Method = "POST"
	}
	if strings.TrimSpace(c.Storage.DestinationsFile) == "" {
		c.Storage.DestinationsFile = DefaultDestinationsFile
	}
	if strings.TrimSpace(c.Storage.WatermarkFile) == "" {
		c.Storage.WatermarkFile = DefaultWatermarkFile
	}
}

// ApplyEnv fills telegram.token from BOT_TOKEN when the file leaves it empty.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if strings.TrimSpace(c.Telegram.Token) == "" {
		c.Telegram.Token = strings.TrimSpace(getenv(TokenEnv))
	}
}
