package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"newsrelay/internal/transport"
)

type Config struct {
	Level    string
	Console  bool
	File     FileConfig
	Telegram TelegramConfig
}

// FileConfig selects the JSON file sink. Path wins over Dir; with only Dir
// set, one file named after the service start time is created inside it.
type FileConfig struct {
	Enabled bool
	Path    string
	Dir     string
}

type TelegramConfig struct {
	Enabled    bool
	ChatID     int64
	ThreadID   int
	MinLevel   string
	RatePerSec int
}

const logFileTimeLayout = "2006-01-02_15-04-05"

// Service owns the log sinks. Apply swaps outputs and levels at runtime;
// every Logger derived from the service picks the change up.
type Service struct {
	mu  sync.Mutex
	cfg Config

	root atomic.Value // stores zerolog.Logger

	startedAt time.Time
	file      *os.File
	filePath  string

	tg *telegramSink
}

// New creates the logging service, applies cfg immediately and returns the
// service together with its root Logger. sender may be nil when Telegram
// logging is not wanted.
func New(cfg Config, sender transport.TextSender) (*Service, Logger) {
	zerolog.ErrorFieldName = "err"
	zerolog.TimeFieldFormat = consoleTimeFormat

	s := &Service{
		startedAt: time.Now(),
		tg:        newTelegramSink(sender),
	}
	s.root.Store(zerolog.New(newConsoleWriter(Stdout())).
		Level(ParseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger())

	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) current() zerolog.Logger {
	zl, ok := s.root.Load().(zerolog.Logger)
	if !ok {
		return zerolog.Nop()
	}
	return zl
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

// FilePath returns the file the service currently writes to ("" if none).
func (s *Service) FilePath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filePath
}

// Apply swaps logger outputs/levels at runtime. It is safe to call concurrently.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg = cfg
	s.tg.apply(cfg.Telegram)

	writers := make([]io.Writer, 0, 3)
	if cfg.Console {
		writers = append(writers, newConsoleWriter(Stdout()))
	}
	if cfg.File.Enabled {
		if f := s.openFileLocked(cfg.File); f != nil {
			writers = append(writers, zerolog.SyncWriter(f))
		}
	} else {
		s.closeFileLocked()
	}
	if cfg.Telegram.Enabled {
		s.tg.start()
		writers = append(writers, s.tg)
		if cfg.Telegram.ChatID == 0 {
			fmt.Fprintln(Stderr(), "logx: telegram logging enabled but logging.telegram.chat_id is not set")
		}
	}
	if len(writers) == 0 {
		writers = append(writers, newConsoleWriter(Stdout()))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(ParseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	s.root.Store(zl)
}

// AttachSender sets the Telegram log sink target once the bot transport
// exists. The logger is usually built first, before the token is known.
func (s *Service) AttachSender(sender transport.TextSender) {
	s.tg.setSender(sender)
	s.mu.Lock()
	enabled := s.cfg.Telegram.Enabled
	s.mu.Unlock()
	if enabled {
		s.tg.start()
	}
}

func (s *Service) resolveFilePath(fc FileConfig) string {
	if p := strings.TrimSpace(fc.Path); p != "" {
		return p
	}
	dir := strings.TrimSpace(fc.Dir)
	if dir == "" {
		dir = "./logs"
	}
	return filepath.Join(dir, s.startedAt.Format(logFileTimeLayout)+".log")
}

// openFileLocked keeps the current handle when the target path is unchanged.
func (s *Service) openFileLocked(fc FileConfig) *os.File {
	path := s.resolveFilePath(fc)
	if s.file != nil && s.filePath == path {
		return s.file
	}
	s.closeFileLocked()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		fmt.Fprintf(Stderr(), "logx: failed creating log dir for %q: %v\n", path, err)
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		fmt.Fprintf(Stderr(), "logx: failed opening log file %q: %v\n", path, err)
		return nil
	}
	s.file = f
	s.filePath = path
	return f
}

func (s *Service) closeFileLocked() {
	if s.file != nil {
		_ = s.file.Close()
	}
	s.file = nil
	s.filePath = ""
}

// Close flushes the Telegram queue worker and closes the log file.
func (s *Service) Close() error {
	s.tg.stop()
	s.mu.Lock()
	s.closeFileLocked()
	s.mu.Unlock()
	return nil
}

func newConsoleWriter(w io.Writer) io.Writer {
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat}
	cw.FormatCaller = func(i interface{}) string {
		s, _ := i.(string)
		return s
	}
	return cw
}

// Stdout returns the configured stdout sink.
func Stdout() io.Writer { return os.Stdout }

// Stderr returns the configured stderr sink.
func Stderr() io.Writer { return os.Stderr }
