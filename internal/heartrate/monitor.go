// Package heartrate manages the connection to an external heart rate sensor
// and validates its readings.
package heartrate

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/lowaak/smart-trainer/workout-runner/internal/events"
)

const (
	MinBPM = 30
	MaxBPM = 250
)

// Status is the sensor connection state.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

type StatusChange struct {
	Status  Status
	Message string
}

// Sensor is the platform heart rate source.
type Sensor interface {
	// Connect binds to the sensor at address, or to any heart rate sensor when
	// address is empty, and returns the bound address. onBPM receives each
	// reading; onDisconnect fires when the device drops the connection.
	Connect(ctx context.Context, address string, onBPM func(int), onDisconnect func()) (string, error)
	Disconnect() error
}

// Bindings remembers the last bound sensor across sessions.
type Bindings interface {
	Address() string
	SetAddress(address string) error
}

// ValidBPM reports whether bpm is a plausible reading.
func ValidBPM(bpm int) bool {
	return bpm >= MinBPM && bpm <= MaxBPM
}

type Monitor struct {
	logger   *log.Logger
	sensor   Sensor
	bindings Bindings

	StatusChanged *events.CallbackEvent[StatusChange]
	Readings      *events.CallbackEvent[int]

	mu           sync.Mutex
	status       Status
	message      string
	generation   uint64
	bpm          int
	hasBPM       bool
	boundAddress string
}

// NewMonitor creates a monitor. bindings may be nil, in which case the bound
// address is only remembered for the lifetime of the monitor.
func NewMonitor(logger *log.Logger, sensor Sensor, bindings Bindings) *Monitor {
	if logger == nil {
		panic("Monitor: logger cannot be nil")
	}
	if sensor == nil {
		panic("Monitor: sensor cannot be nil")
	}
	m := &Monitor{
		logger:        logger,
		sensor:        sensor,
		bindings:      bindings,
		StatusChanged: events.NewCallbackEvent[StatusChange](true),
		Readings:      events.NewCallbackEvent[int](false),
		status:        StatusDisconnected,
	}
	if bindings != nil {
		m.boundAddress = bindings.Address()
	}
	return m
}

// Connect discovers and binds to any heart rate sensor.
func (m *Monitor) Connect(ctx context.Context) bool {
	return m.connect(ctx, "")
}

// Reconnect tries the previously bound sensor first and falls back to a
// fresh discovery.
func (m *Monitor) Reconnect(ctx context.Context) bool {
	m.mu.Lock()
	address := m.boundAddress
	m.mu.Unlock()

	if address != "" {
		m.logger.Printf("Monitor: reconnecting to %s", address)
		if m.connect(ctx, address) {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
	}
	return m.connect(ctx, "")
}

// Disconnect drops the sensor connection. It is safe to call repeatedly.
func (m *Monitor) Disconnect() {
	m.mu.Lock()
	m.generation++
	wasActive := m.status == StatusConnected || m.status == StatusConnecting
	m.hasBPM = false
	changed := m.setStatusLocked(StatusDisconnected, "")
	m.mu.Unlock()

	if wasActive {
		if err := m.sensor.Disconnect(); err != nil {
			m.logger.Printf("Monitor: disconnect: %v", err)
		}
	}
	if changed {
		m.notifyStatus()
	}
}

// CurrentBPM returns the last valid reading while connected.
func (m *Monitor) CurrentBPM() (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bpm, m.hasBPM
}

func (m *Monitor) Status() (Status, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status, m.message
}

// BoundAddress returns the address of the last successfully bound sensor.
func (m *Monitor) BoundAddress() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.boundAddress
}

func (m *Monitor) connect(ctx context.Context, address string) bool {
	m.mu.Lock()
	if m.status == StatusConnected {
		m.mu.Unlock()
		return true
	}
	m.generation++
	gen := m.generation
	changed := m.setStatusLocked(StatusConnecting, "")
	m.mu.Unlock()
	if changed {
		m.notifyStatus()
	}

	bound, err := m.sensor.Connect(ctx,
		address,
		func(bpm int) { m.handleReading(gen, bpm) },
		func() { m.handleDisconnect(gen) },
	)

	m.mu.Lock()
	if gen != m.generation {
		// Disconnect was called while connecting.
		m.mu.Unlock()
		if err == nil {
			if derr := m.sensor.Disconnect(); derr != nil {
				m.logger.Printf("Monitor: disconnect stale connection: %v", derr)
			}
		}
		return false
	}
	if err != nil {
		m.setStatusLocked(StatusError, errorMessage(err))
		m.mu.Unlock()
		m.logger.Printf("Monitor: connect %q failed: %v", address, err)
		m.notifyStatus()
		return false
	}
	m.boundAddress = bound
	m.setStatusLocked(StatusConnected, "")
	m.mu.Unlock()

	m.logger.Printf("Monitor: connected to %s", bound)
	if m.bindings != nil {
		if err := m.bindings.SetAddress(bound); err != nil {
			m.logger.Printf("Monitor: saving binding: %v", err)
		}
	}
	m.notifyStatus()
	return true
}

func (m *Monitor) handleReading(gen uint64, bpm int) {
	if !ValidBPM(bpm) {
		return
	}
	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return
	}
	m.bpm = bpm
	m.hasBPM = true
	m.mu.Unlock()
	m.Readings.Notify(bpm)
}

func (m *Monitor) handleDisconnect(gen uint64) {
	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return
	}
	m.generation++
	m.hasBPM = false
	changed := m.setStatusLocked(StatusDisconnected, "Heart rate sensor disconnected")
	m.mu.Unlock()

	m.logger.Println("Monitor: sensor dropped the connection")
	if changed {
		m.notifyStatus()
	}
}

func (m *Monitor) setStatusLocked(status Status, message string) bool {
	if m.status == status && m.message == message {
		return false
	}
	m.status = status
	m.message = message
	return true
}

func (m *Monitor) notifyStatus() {
	status, message := m.Status()
	m.StatusChanged.Notify(StatusChange{Status: status, Message: message})
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "Timed out looking for a heart rate sensor"
	case errors.Is(err, context.Canceled):
		return "Heart rate connection cancelled"
	default:
		return "Heart rate sensor error: " + err.Error()
	}
}
