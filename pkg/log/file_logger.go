package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// Extension is the conventional capture file extension.
const Extension = ".dlog"

// captureEncMode writes canonical map key order and RFC 3339 timestamps
// with nanoseconds.
var captureEncMode = func() cbor.EncMode {
	mode, err := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		Time:          cbor.TimeRFC3339Nano,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("log: cbor encode mode: %v", err))
	}
	return mode
}()

// EncodeEvent returns the CBOR form of one capture event.
func EncodeEvent(event Event) ([]byte, error) {
	return captureEncMode.Marshal(event)
}

// FileLogger writes protocol events to a file in CBOR format.
// It is safe for concurrent use from multiple goroutines.
type FileLogger struct {
	file    *os.File
	encoder *cbor.Encoder
	mu      sync.Mutex
	closed  bool
	written uint64
	failed  uint64
}

// NewFileLogger creates a FileLogger writing to the named file. Missing
// parent directories are created, and Extension is appended when name has
// no extension. Existing files are appended to.
func NewFileLogger(name string) (*FileLogger, error) {
	if filepath.Ext(name) == "" {
		name += Extension
	}
	if dir := filepath.Dir(name); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	f, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileLogger{
		file:    f,
		encoder: captureEncMode.NewEncoder(f),
	}, nil
}

// Name returns the file name.
func (l *FileLogger) Name() string {
	return l.file.Name()
}

// Log appends an event. Encoding errors are counted, not returned.
func (l *FileLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	if err := l.encoder.Encode(event); err != nil {
		l.failed++
		return
	}
	l.written++
}

// Counts returns the number of events written and failed.
func (l *FileLogger) Counts() (written, failed uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.written, l.failed
}

// Close syncs and closes the file. Later Log calls are ignored.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	_ = l.file.Sync()
	return l.file.Close()
}

var _ Logger = (*FileLogger)(nil)
