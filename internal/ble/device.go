package ble

import (
	"fmt"
	"strings"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
)

// DeviceFactory creates the platform ble.Device used for scanning and
// dialing. It is a package variable so tests can substitute a fake.
var DeviceFactory = func() (ble.Device, error) {
	dev, err := darwin.NewDevice()
	if err != nil {
		if strings.Contains(err.Error(), "central manager has invalid state") {
			if strings.Contains(err.Error(), "have=4") {
				return nil, fmt.Errorf("bluetooth is turned off - please enable bluetooth and retry")
			}
			return nil, fmt.Errorf("bluetooth is not ready - %w", err)
		}
		return nil, err
	}
	return dev, nil
}
