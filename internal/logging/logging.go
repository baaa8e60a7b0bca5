// Package logging builds the process logger: a rotating file plus, while the
// dashboard runs, a channel of lines for its log pane.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Logger owns the rotating file and the optional line channel.
type Logger struct {
	*log.Logger
	file  *lumberjack.Logger
	lines *LineWriter
}

// New creates the logger. The log directory is created if needed.
func New(opts Options) (*Logger, error) {
	if dir := filepath.Dir(opts.File); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   true,
	}
	lines := NewLineWriter(256)
	return &Logger{
		Logger: log.New(io.MultiWriter(file, lines), "", log.LstdFlags|log.Lmicroseconds),
		file:   file,
		lines:  lines,
	}, nil
}

// Lines returns formatted log lines for display. Lines are dropped while
// nobody keeps up with the channel.
func (l *Logger) Lines() <-chan string {
	return l.lines.C()
}

func (l *Logger) Close() error {
	l.lines.Close()
	return l.file.Close()
}

// LineWriter turns written bytes into a channel of complete lines without
// ever blocking the writer.
type LineWriter struct {
	mu      sync.Mutex
	ch      chan string
	partial strings.Builder
	closed  bool
}

func NewLineWriter(buffer int) *LineWriter {
	return &LineWriter{ch: make(chan string, buffer)}
}

func (w *LineWriter) C() <-chan string {
	return w.ch
}

func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return len(p), nil
	}
	w.partial.Write(p)
	buffered := w.partial.String()
	for {
		i := strings.IndexByte(buffered, '\n')
		if i < 0 {
			break
		}
		select {
		case w.ch <- buffered[:i]:
		default:
		}
		buffered = buffered[i+1:]
	}
	w.partial.Reset()
	w.partial.WriteString(buffered)
	return len(p), nil
}

func (w *LineWriter) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.ch)
	}
}
