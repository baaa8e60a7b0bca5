// Package feedback turns engine transitions into voice prompts, haptic pulses
// and screen wake locks. It never feeds anything back into the engine.
package feedback

import (
	"context"
	"fmt"
	"io"
	"log"
	"os/exec"
	"sync"
	"time"
)

type Pattern int

const (
	PatternShort Pattern = iota
	PatternLong
	PatternDouble
)

func (p Pattern) String() string {
	switch p {
	case PatternShort:
		return "short"
	case PatternLong:
		return "long"
	case PatternDouble:
		return "double"
	default:
		return fmt.Sprintf("Pattern(%d)", int(p))
	}
}

type Voice interface {
	// Say speaks text. interrupt asks the output to duck or pause music.
	Say(ctx context.Context, text string, interrupt bool) error
}

type Haptic interface {
	Pulse(p Pattern) error
}

type WakeLock interface {
	Acquire() error
	Release() error
}

// LogVoice writes prompts to the logger instead of speaking them.
type LogVoice struct {
	logger *log.Logger
}

func NewLogVoice(logger *log.Logger) *LogVoice {
	if logger == nil {
		panic("LogVoice: logger cannot be nil")
	}
	return &LogVoice{logger: logger}
}

func (v *LogVoice) Say(_ context.Context, text string, interrupt bool) error {
	v.logger.Printf("Voice: %q (interrupt music: %v)", text, interrupt)
	return nil
}

// CommandVoice speaks through an external text-to-speech program such as
// espeak or say. The prompt is passed as the last argument.
type CommandVoice struct {
	logger  *log.Logger
	command string
	args    []string
	timeout time.Duration
}

func NewCommandVoice(logger *log.Logger, command string, args ...string) *CommandVoice {
	if logger == nil {
		panic("CommandVoice: logger cannot be nil")
	}
	return &CommandVoice{logger: logger, command: command, args: args, timeout: 15 * time.Second}
}

func (v *CommandVoice) Say(ctx context.Context, text string, _ bool) error {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	args := append(append([]string(nil), v.args...), text)
	out, err := exec.CommandContext(ctx, v.command, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w (%s)", v.command, err, out)
	}
	return nil
}

// BellHaptic rings the terminal bell, once per pulse.
type BellHaptic struct {
	mu sync.Mutex
	w  io.Writer
}

func NewBellHaptic(w io.Writer) *BellHaptic {
	return &BellHaptic{w: w}
}

func (h *BellHaptic) Pulse(p Pattern) error {
	bell := "\a"
	if p == PatternDouble {
		bell = "\a\a"
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, bell)
	return err
}

// LogWakeLock records wake lock changes. Acquire and Release are idempotent.
type LogWakeLock struct {
	logger *log.Logger
	mu     sync.Mutex
	held   bool
}

func NewLogWakeLock(logger *log.Logger) *LogWakeLock {
	if logger == nil {
		panic("LogWakeLock: logger cannot be nil")
	}
	return &LogWakeLock{logger: logger}
}

func (w *LogWakeLock) Acquire() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.held {
		w.held = true
		w.logger.Println("WakeLock: acquired")
	}
	return nil
}

func (w *LogWakeLock) Release() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.held {
		w.held = false
		w.logger.Println("WakeLock: released")
	}
	return nil
}

func (w *LogWakeLock) Held() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.held
}
