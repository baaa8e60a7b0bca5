package heartrate

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

type bindingData struct {
	HeartRateAddress string `json:"heart_rate_address"`
}

// FileBindingStore keeps the bound sensor address in a small JSON file.
type FileBindingStore struct {
	filePath string
	logger   *log.Logger
	mu       sync.Mutex
	data     bindingData
}

// DefaultBindingPath is ~/.workout-runner/hr_binding.json.
func DefaultBindingPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".workout-runner", "hr_binding.json")
}

func NewFileBindingStore(logger *log.Logger, filePath string) *FileBindingStore {
	if logger == nil {
		panic("FileBindingStore: logger cannot be nil")
	}
	if filePath == "" {
		filePath = DefaultBindingPath()
	}
	s := &FileBindingStore{filePath: filePath, logger: logger}
	s.load()
	return s
}

func (s *FileBindingStore) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.HeartRateAddress
}

func (s *FileBindingStore) SetAddress(address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.HeartRateAddress == address {
		return nil
	}
	s.data.HeartRateAddress = address
	return s.save()
}

func (s *FileBindingStore) load() {
	raw, err := os.ReadFile(s.filePath)
	if err != nil {
		s.logger.Printf("BindingStore: load %s (no existing file)", s.filePath)
		return
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		s.logger.Printf("BindingStore: load %s failed to parse: %v", s.filePath, err)
		s.data = bindingData{}
		return
	}
	s.logger.Printf("BindingStore: load %s -> %q", s.filePath, s.data.HeartRateAddress)
}

func (s *FileBindingStore) save() error {
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0755); err != nil {
		return fmt.Errorf("creating binding dir: %w", err)
	}
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding binding: %w", err)
	}
	if err := os.WriteFile(s.filePath, raw, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", s.filePath, err)
	}
	s.logger.Printf("BindingStore: save %s -> %q", s.filePath, s.data.HeartRateAddress)
	return nil
}
