package bt

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"
)

var ErrNotConnected = errors.New("device not connected")

type BTDevice interface {
	GetAddressString() string
	GetLocalName() string
	GetScanRSSI() int16
	GetScanLastSeen() time.Time
	GetState() BTDeviceState
	IsConnected() bool
	EnableNotifications(serviceUuid string, characteristicUuid string, callbackFunc func(buf []byte)) error
	DisableNotifications(serviceUuid string, characteristicUuid string) error
}

type btDeviceImpl struct {
	address      bluetooth.Address
	logger       *log.Logger
	mu           sync.RWMutex
	bleMu        sync.Mutex // serializes characteristic discovery and notification setup
	localName    string
	rssi         int16
	scanLastSeen time.Time
	state        BTDeviceState
	// nil while not connected
	connectedDevice *bluetooth.Device
	onDisconnect    func()

	serviceByUuid          map[string]*bluetooth.DeviceService
	characteristicByUuid   map[string]*bluetooth.DeviceCharacteristic
	serviceCharsDiscovered map[string]bool
	allServicesDiscovered  bool
}

func newBtDeviceImpl(logger *log.Logger, address bluetooth.Address) *btDeviceImpl {
	if logger == nil {
		panic("logger must be non nil")
	}
	return &btDeviceImpl{
		logger:       logger,
		address:      address,
		localName:    "Unknown",
		scanLastSeen: time.Unix(0, 0),
		state:        Disconnected,
	}
}

func (b *btDeviceImpl) GetAddressString() string {
	return b.address.String()
}

func (b *btDeviceImpl) GetLocalName() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.localName
}

func (b *btDeviceImpl) GetScanRSSI() int16 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.rssi
}

func (b *btDeviceImpl) GetScanLastSeen() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.scanLastSeen
}

func (b *btDeviceImpl) GetState() BTDeviceState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

func (b *btDeviceImpl) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connectedDevice != nil
}

func (b *btDeviceImpl) setScanResult(result bluetooth.ScanResult, seen time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if name := result.LocalName(); name != "" {
		b.localName = name
	}
	b.rssi = result.RSSI
	b.scanLastSeen = seen
}

func (b *btDeviceImpl) setConnecting() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Connecting
}

func (b *btDeviceImpl) setConnected(device bluetooth.Device, onDisconnect func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connectedDevice = &device
	b.onDisconnect = onDisconnect
	b.state = Connected
}

// setDisconnected clears the connection and the discovery cache. It returns
// the disconnect callback registered at connect time, if the device was
// connected.
func (b *btDeviceImpl) setDisconnected() func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	wasConnected := b.connectedDevice != nil
	b.connectedDevice = nil
	b.state = Disconnected
	b.serviceByUuid = nil
	b.characteristicByUuid = nil
	b.serviceCharsDiscovered = nil
	b.allServicesDiscovered = false
	cb := b.onDisconnect
	b.onDisconnect = nil
	if !wasConnected {
		return nil
	}
	return cb
}

func (b *btDeviceImpl) getConnectedDevice() *bluetooth.Device {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connectedDevice
}

func (b *btDeviceImpl) EnableNotifications(
	serviceUuidStr string,
	characteristicUuidStr string,
	callbackFunc func(buf []byte)) error {

	b.bleMu.Lock()
	defer b.bleMu.Unlock()

	b.logger.Printf("BTDevice: EnableNotifications called for service=%s char=%s", serviceUuidStr, characteristicUuidStr)
	characteristic, err := b.lookupCharacteristic(serviceUuidStr, characteristicUuidStr)
	if err != nil {
		return err
	}
	if err := characteristic.EnableNotifications(callbackFunc); err != nil {
		return fmt.Errorf("failed to enable notifications: %w", err)
	}
	b.logger.Printf("BTDevice: Notifications enabled for %s", characteristicUuidStr)
	return nil
}

func (b *btDeviceImpl) DisableNotifications(serviceUuidStr string, characteristicUuidStr string) error {
	b.bleMu.Lock()
	defer b.bleMu.Unlock()

	characteristic, err := b.lookupCharacteristic(serviceUuidStr, characteristicUuidStr)
	if err != nil {
		return err
	}
	// nil callback disables notifications
	if err := characteristic.EnableNotifications(nil); err != nil {
		return fmt.Errorf("failed to disable notifications: %w", err)
	}
	return nil
}

func (b *btDeviceImpl) lookupCharacteristic(serviceUuidStr, characteristicUuidStr string) (*bluetooth.DeviceCharacteristic, error) {
	serviceUuid, err := bluetooth.ParseUUID(serviceUuidStr)
	if err != nil {
		return nil, fmt.Errorf("invalid service UUID %q: %w", serviceUuidStr, err)
	}
	characteristicUuid, err := bluetooth.ParseUUID(characteristicUuidStr)
	if err != nil {
		return nil, fmt.Errorf("invalid characteristic UUID %q: %w", characteristicUuidStr, err)
	}
	return b.getDeviceCharacteristic(serviceUuid, characteristicUuid)
}

func (b *btDeviceImpl) getDeviceService(serviceUuid bluetooth.UUID) (*bluetooth.DeviceService, error) {
	device := b.getConnectedDevice()
	if device == nil {
		return nil, ErrNotConnected
	}
	serviceUuidStr := serviceUuid.String()

	b.mu.Lock()
	defer b.mu.Unlock()
	if service, ok := b.serviceByUuid[serviceUuidStr]; ok {
		return service, nil
	}

	// Discover everything once; rediscovering single services interrupts
	// services already in use.
	if !b.allServicesDiscovered {
		b.logger.Printf("BTDevice: Discovering all services for %s", b.address.String())
		deviceServices, err := device.DiscoverServices(nil)
		if err != nil {
			return nil, fmt.Errorf("error discovering services: %w", err)
		}
		b.serviceByUuid = make(map[string]*bluetooth.DeviceService, len(deviceServices))
		for i := range deviceServices {
			svc := &deviceServices[i]
			b.serviceByUuid[svc.UUID().String()] = svc
		}
		b.allServicesDiscovered = true
	}

	service, ok := b.serviceByUuid[serviceUuidStr]
	if !ok {
		return nil, fmt.Errorf("service %v not found on device", serviceUuidStr)
	}
	return service, nil
}

func (b *btDeviceImpl) getDeviceCharacteristic(serviceUuid bluetooth.UUID, charUuid bluetooth.UUID) (*bluetooth.DeviceCharacteristic, error) {
	serviceUuidStr := serviceUuid.String()
	comboUuidStr := fmt.Sprintf("%s_%s", serviceUuidStr, charUuid.String())

	b.mu.RLock()
	characteristic, ok := b.characteristicByUuid[comboUuidStr]
	discovered := b.serviceCharsDiscovered[serviceUuidStr]
	b.mu.RUnlock()
	if ok {
		return characteristic, nil
	}

	if !discovered {
		service, err := b.getDeviceService(serviceUuid)
		if err != nil {
			return nil, err
		}
		b.logger.Printf("BTDevice: Discovering all characteristics for service %s", serviceUuidStr)
		chars, err := service.DiscoverCharacteristics(nil)
		if err != nil {
			return nil, fmt.Errorf("could not discover characteristics for service %v: %w", serviceUuidStr, err)
		}

		b.mu.Lock()
		if b.characteristicByUuid == nil {
			b.characteristicByUuid = make(map[string]*bluetooth.DeviceCharacteristic)
			b.serviceCharsDiscovered = make(map[string]bool)
		}
		for i := range chars {
			char := &chars[i]
			b.characteristicByUuid[fmt.Sprintf("%s_%s", serviceUuidStr, char.UUID().String())] = char
		}
		b.serviceCharsDiscovered[serviceUuidStr] = true
		b.mu.Unlock()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	characteristic, ok = b.characteristicByUuid[comboUuidStr]
	if !ok {
		return nil, fmt.Errorf("characteristic %v not found in service %v", charUuid.String(), serviceUuidStr)
	}
	return characteristic, nil
}
