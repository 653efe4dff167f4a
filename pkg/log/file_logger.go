package log

import (
	"fmt"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

const captureFileMode = 0o644

// FileLogger appends events to a capture file as a CBOR sequence, the
// format Reader consumes. Safe for concurrent use.
type FileLogger struct {
	mu  sync.Mutex
	f   *os.File // nil once closed
	enc *cbor.Encoder
}

var _ Logger = (*FileLogger)(nil)

// NewFileLogger opens path for appending, creating it if needed.
func NewFileLogger(path string) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, captureFileMode)
	if err != nil {
		return nil, fmt.Errorf("open capture %s: %w", path, err)
	}
	return &FileLogger{f: f, enc: logEncMode.NewEncoder(f)}, nil
}

// Log appends event. Encode failures are dropped so a full disk never
// stalls the host.
func (l *FileLogger) Log(event Event) {
	l.mu.Lock()
	if l.f != nil {
		_ = l.enc.Encode(event)
	}
	l.mu.Unlock()
}

// Close closes the file. Later Log calls are no-ops.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f := l.f
	if f == nil {
		return nil
	}
	l.f = nil
	return f.Close()
}
