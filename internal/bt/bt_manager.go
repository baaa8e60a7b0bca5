// Package bt is a thin BLE layer over tinygo.org/x/bluetooth used to find and
// subscribe to heart rate straps.
package bt

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/lowaak/smart-trainer/workout-runner/internal/events"
	"github.com/lowaak/smart-trainer/workout-runner/internal/go_func_utils"
)

var (
	ErrScanTimeout   = errors.New("no matching device found before scan timeout")
	ErrDeviceUnknown = errors.New("device not seen by this manager")
)

type BTManager struct {
	adapter               *bluetooth.Adapter
	logger                *log.Logger
	scanTimeout           time.Duration
	mu                    sync.RWMutex
	devicesByAddress      map[string]*btDeviceImpl
	scanning              bool
	connectedDevicesEvent *events.ChannelEvent[[]BTDevice]
	ctx                   context.Context
	cancel                context.CancelFunc
	wg                    sync.WaitGroup
}

func NewBTManager(adapter *bluetooth.Adapter, logger *log.Logger, scanTimeout ...time.Duration) *BTManager {
	if logger == nil {
		panic("BTManager: logger cannot be nil")
	}
	if adapter == nil {
		panic("BTManager: adapter cannot be nil")
	}
	timeout := 10 * time.Second
	if len(scanTimeout) > 0 && scanTimeout[0] > 0 {
		timeout = scanTimeout[0]
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &BTManager{
		adapter:               adapter,
		logger:                logger,
		scanTimeout:           timeout,
		devicesByAddress:      make(map[string]*btDeviceImpl),
		connectedDevicesEvent: events.NewChannelEvent[[]BTDevice](true),
		ctx:                   ctx,
		cancel:                cancel,
	}
}

func (m *BTManager) Enable() error {
	m.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		addressStr := device.Address.String()
		if connected {
			m.logger.Printf("BTManager: Device connected: %s", addressStr)
			return
		}
		m.logger.Printf("BTManager: Device disconnected: %s", addressStr)
		m.mu.RLock()
		d, ok := m.devicesByAddress[addressStr]
		m.mu.RUnlock()
		if !ok {
			return
		}
		if cb := d.setDisconnected(); cb != nil {
			cb()
		}
		m.emitConnectedDevicesChange()
	})
	return m.adapter.Enable()
}

func (m *BTManager) getBTDeviceImpl(address bluetooth.Address) *btDeviceImpl {
	addressStr := address.String()
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devicesByAddress[addressStr]
	if !ok {
		d = newBtDeviceImpl(m.logger, address)
		m.devicesByAddress[addressStr] = d
	}
	return d
}

// ScanFor blocks until a device advertising serviceUuid is found. A non-empty
// address restricts the match to that device. The scan stops on the first
// match, on ctx cancellation or after the scan timeout.
func (m *BTManager) ScanFor(ctx context.Context, serviceUuid string, address string) (BTDevice, error) {
	uuid, err := bluetooth.ParseUUID(serviceUuid)
	if err != nil {
		return nil, fmt.Errorf("invalid service UUID %q: %w", serviceUuid, err)
	}

	m.mu.Lock()
	if m.scanning {
		m.mu.Unlock()
		return nil, errors.New("a scan is already running")
	}
	m.scanning = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.scanning = false
		m.mu.Unlock()
	}()

	m.logger.Printf("BTManager: Starting scan for service %s (address filter %q)", serviceUuid, address)
	found := make(chan *btDeviceImpl, 1)
	scanDone := make(chan error, 1)

	m.wg.Add(1)
	go_func_utils.SafeGo(m.logger, func() {
		defer m.wg.Done()
		defer m.logger.Printf("BTManager: exiting scan loop")
		scanDone <- m.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			if !result.HasServiceUUID(uuid) {
				return
			}
			if address != "" && result.Address.String() != address {
				return
			}
			d := m.getBTDeviceImpl(result.Address)
			d.setScanResult(result, time.Now())
			select {
			case found <- d:
				m.logger.Printf("BTManager: Found device: %s (%s) [RSSI: %d]", d.GetLocalName(), d.GetAddressString(), result.RSSI)
				if err := adapter.StopScan(); err != nil {
					m.logger.Printf("BTManager: Error stopping scan: %v", err)
				}
			default:
			}
		})
	})

	timer := time.NewTimer(m.scanTimeout)
	defer timer.Stop()

	stop := func() {
		if err := m.adapter.StopScan(); err != nil {
			m.logger.Printf("BTManager: Error stopping scan: %v", err)
		}
	}

	select {
	case d := <-found:
		return d, nil
	case err := <-scanDone:
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		select {
		case d := <-found:
			return d, nil
		default:
			return nil, ErrScanTimeout
		}
	case <-timer.C:
		stop()
		return nil, ErrScanTimeout
	case <-ctx.Done():
		stop()
		return nil, ctx.Err()
	case <-m.ctx.Done():
		stop()
		return nil, m.ctx.Err()
	}
}

// Connect opens a connection to device. onDisconnect runs once when the
// connection drops, whether initiated by the device or by Disconnect.
func (m *BTManager) Connect(device BTDevice, onDisconnect func()) error {
	addressStr := device.GetAddressString()
	m.mu.RLock()
	d, ok := m.devicesByAddress[addressStr]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceUnknown, addressStr)
	}

	m.logger.Printf("BTManager: Attempting to connect to device: %s", addressStr)
	d.setConnecting()
	connected, err := m.adapter.Connect(d.address, bluetooth.ConnectionParams{})
	if err != nil {
		d.setDisconnected()
		m.logger.Printf("BTManager: Connection error: %v", err)
		return fmt.Errorf("connecting to %s: %w", addressStr, err)
	}
	d.setConnected(connected, onDisconnect)
	m.logger.Printf("BTManager: Connected to device: %s", addressStr)
	m.emitConnectedDevicesChange()
	return nil
}

// Disconnect drops the connection to device. Disconnecting a device that is
// not connected is a no-op.
func (m *BTManager) Disconnect(device BTDevice) error {
	addressStr := device.GetAddressString()
	m.mu.RLock()
	d, ok := m.devicesByAddress[addressStr]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	inner := d.getConnectedDevice()
	if inner == nil {
		return nil
	}
	m.logger.Printf("BTManager: Disconnecting from device: %s", addressStr)
	err := inner.Disconnect()
	if cb := d.setDisconnected(); cb != nil {
		cb()
	}
	m.emitConnectedDevicesChange()
	if err != nil {
		return fmt.Errorf("disconnecting from %s: %w", addressStr, err)
	}
	return nil
}

func (m *BTManager) GetConnectedDevices() []BTDevice {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]BTDevice, 0)
	for _, d := range m.devicesByAddress {
		if d.IsConnected() {
			result = append(result, d)
		}
	}
	return result
}

// ListenToConnectedDevices registers a channel to receive connected devices list changes
// Returns a deregistration function that can be called to remove the listener
func (m *BTManager) ListenToConnectedDevices(ch chan<- []BTDevice) func() {
	return m.connectedDevicesEvent.Listen(ch)
}

func (m *BTManager) emitConnectedDevicesChange() {
	m.connectedDevicesEvent.Notify(m.GetConnectedDevices())
}

// Shutdown disconnects every device and waits for scan goroutines to exit.
func (m *BTManager) Shutdown() {
	m.logger.Println("BTManager: Shutting down")
	for _, dev := range m.GetConnectedDevices() {
		if err := m.Disconnect(dev); err != nil {
			m.logger.Printf("BTManager: Error disconnecting from %v: %v", dev.GetAddressString(), err)
		}
	}
	m.cancel()
	m.wg.Wait()
	m.logger.Println("BTManager: Shutdown complete")
}
