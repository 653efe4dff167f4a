package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/devhost-project/devhost-go/internal/config"
	"github.com/devhost-project/devhost-go/pkg/log"
)

// New creates the operational logger. Every record carries the service
// name and version.
func New(cfg config.LoggingConfig, version string) *slog.Logger {
	return NewWithWriter(cfg, version, writer(cfg.Output))
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(cfg config.LoggingConfig, version string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "devhost"),
		slog.String("version", version),
	})
	return slog.New(handler)
}

func writer(output string) io.Writer {
	switch strings.ToLower(output) {
	case "stdout":
		return os.Stdout
	default:
		return os.Stderr
	}
}

// ParseLevel converts a level name to slog.Level. Unknown names map to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Protocol holds the protocol event logger and the resources behind it.
type Protocol struct {
	log.Logger
	file *log.FileLogger
}

// NewProtocol builds the protocol logger. With neither a capture file nor
// slog mirroring configured it discards everything.
func NewProtocol(cfg config.LoggingConfig, logger *slog.Logger) (*Protocol, error) {
	p := &Protocol{}

	var sinks []log.Logger
	if cfg.ProtocolFile != "" {
		f, err := log.NewFileLogger(cfg.ProtocolFile)
		if err != nil {
			return nil, err
		}
		p.file = f
		sinks = append(sinks, f)
	}
	if cfg.ProtocolSlog && logger != nil {
		sinks = append(sinks, log.NewSlogAdapter(logger.With("component", "protocol")))
	}

	switch len(sinks) {
	case 0:
		p.Logger = log.NoopLogger{}
	case 1:
		p.Logger = sinks[0]
	default:
		p.Logger = log.NewMultiLogger(sinks...)
	}
	return p, nil
}

// Close closes the capture file, if any.
func (p *Protocol) Close() error {
	if p.file == nil {
		return nil
	}
	return p.file.Close()
}
