package ble

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/cornelk/hashmap"
	blelib "github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/lxb/internal/clock"
)

// DefaultScanTimeout is used on platforms whose BLE stack settles
// quickly. Windows' WinRT backend needs longer to return a stable
// advertisement set, hence ScanTimeoutWindows.
const (
	DefaultScanTimeout = 8 * time.Second
	ScanTimeoutWindows = 12 * time.Second

	// scanCacheTTL controls how long a previously discovered device is
	// still returned from Devices() without a fresh scan seeing it again.
	scanCacheTTL = 30 * time.Second
)

// ScanTimeout returns the platform-appropriate default scan duration.
func ScanTimeout() time.Duration {
	if runtime.GOOS == "windows" {
		return ScanTimeoutWindows
	}
	return DefaultScanTimeout
}

// DiscoveredDevice is a name-filtered scan result.
type DiscoveredDevice struct {
	Address  string
	Name     string
	RSSI     int
	LastSeen time.Time
}

// Scanner discovers advertising devices whose local name carries the
// DeviceNamePrefix, caching results for scanCacheTTL so a caller polling
// Devices() between scans still sees recently-seen peripherals.
type Scanner struct {
	logger *logrus.Logger
	clk    clock.Clock
	cache  *hashmap.Map[string, DiscoveredDevice]
}

// NewScanner creates a Scanner.
func NewScanner(logger *logrus.Logger, clk clock.Clock) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Scanner{
		logger: logger,
		clk:    clk,
		cache:  hashmap.New[string, DiscoveredDevice](),
	}
}

// Scan runs discovery for timeout (or ScanTimeout() if zero), recording
// every advertisement whose local name has DeviceNamePrefix into the
// cache. It returns context.Canceled/DeadlineExceeded-free: both are
// treated as a normal scan-window close, not an error.
func (s *Scanner) Scan(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = ScanTimeout()
	}

	dev, err := DeviceFactory()
	if err != nil {
		return fmt.Errorf("ble: create scan device: %w", err)
	}

	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.logger.WithField("timeout", timeout).Debug("ble: scan starting")
	err = dev.Scan(scanCtx, true, s.handleAdvertisement)
	if err != nil && scanCtx.Err() == nil {
		return fmt.Errorf("ble: scan failed: %w", err)
	}
	return nil
}

func (s *Scanner) handleAdvertisement(adv blelib.Advertisement) {
	s.recordDevice(adv.Addr().String(), adv.LocalName(), adv.RSSI())
}

// recordDevice applies the name-prefix filter and caches a sighting. Kept
// separate from handleAdvertisement so the filtering/caching logic can be
// exercised without a live blelib.Advertisement.
func (s *Scanner) recordDevice(address, name string, rssi int) {
	if !strings.HasPrefix(name, DeviceNamePrefix) {
		return
	}

	d := DiscoveredDevice{
		Address:  address,
		Name:     name,
		RSSI:     rssi,
		LastSeen: s.clk.Now(),
	}
	s.cache.Set(d.Address, d)
	s.logger.WithFields(logrus.Fields{
		"address": d.Address,
		"name":    d.Name,
		"rssi":    d.RSSI,
	}).Debug("ble: discovered device")
}

// Devices returns every cached device last seen within scanCacheTTL.
func (s *Scanner) Devices() []DiscoveredDevice {
	now := s.clk.Now()
	out := make([]DiscoveredDevice, 0, s.cache.Len())
	s.cache.Range(func(_ string, d DiscoveredDevice) bool {
		if now.Sub(d.LastSeen) <= scanCacheTTL {
			out = append(out, d)
		}
		return true
	})
	return out
}

// Lookup returns the cached device for an address, and whether it was
// found (and still fresh).
func (s *Scanner) Lookup(address string) (DiscoveredDevice, bool) {
	d, ok := s.cache.Get(address)
	if !ok || s.clk.Now().Sub(d.LastSeen) > scanCacheTTL {
		return DiscoveredDevice{}, false
	}
	return d, true
}

// LookupByName returns the most recently seen cached device matching
// name, used by the device registry to rebind a stale address by name
// (BLE addresses aren't stable across platforms/reboots).
func (s *Scanner) LookupByName(name string) (DiscoveredDevice, bool) {
	var best DiscoveredDevice
	found := false
	now := s.clk.Now()
	s.cache.Range(func(_ string, d DiscoveredDevice) bool {
		if d.Name != name || now.Sub(d.LastSeen) > scanCacheTTL {
			return true
		}
		if !found || d.LastSeen.After(best.LastSeen) {
			best = d
			found = true
		}
		return true
	})
	return best, found
}
