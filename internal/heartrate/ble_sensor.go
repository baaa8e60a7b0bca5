package heartrate

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/lowaak/smart-trainer/workout-runner/internal/bt"
)

// BLESensor reads a Bluetooth LE heart rate strap through a BTManager.
type BLESensor struct {
	logger  *log.Logger
	manager *bt.BTManager

	mu     sync.Mutex
	device bt.BTDevice
}

var _ Sensor = (*BLESensor)(nil)

func NewBLESensor(logger *log.Logger, manager *bt.BTManager) *BLESensor {
	if logger == nil {
		panic("BLESensor: logger cannot be nil")
	}
	if manager == nil {
		panic("BLESensor: manager cannot be nil")
	}
	return &BLESensor{logger: logger, manager: manager}
}

func (s *BLESensor) Connect(ctx context.Context, address string, onBPM func(int), onDisconnect func()) (string, error) {
	device, err := s.manager.ScanFor(ctx, bt.ServiceUUIDHeartRate, address)
	if err != nil {
		return "", err
	}
	if err := s.manager.Connect(device, onDisconnect); err != nil {
		return "", err
	}

	err = device.EnableNotifications(bt.ServiceUUIDHeartRate, bt.CharUUIDHeartRateMeasurement, func(buf []byte) {
		m, err := bt.ParseHeartRateMeasurement(buf)
		if err != nil {
			s.logger.Printf("BLESensor: %v", err)
			return
		}
		onBPM(m.BPM)
	})
	if err != nil {
		if derr := s.manager.Disconnect(device); derr != nil {
			s.logger.Printf("BLESensor: disconnect after failed subscribe: %v", derr)
		}
		return "", fmt.Errorf("subscribing to heart rate: %w", err)
	}

	s.mu.Lock()
	s.device = device
	s.mu.Unlock()
	s.logger.Printf("BLESensor: streaming heart rate from %s (%s)", device.GetLocalName(), device.GetAddressString())
	return device.GetAddressString(), nil
}

func (s *BLESensor) Disconnect() error {
	s.mu.Lock()
	device := s.device
	s.device = nil
	s.mu.Unlock()
	if device == nil {
		return nil
	}
	return s.manager.Disconnect(device)
}
