package ble

import "github.com/go-ble/ble"

// Service and characteristic UUIDs must match the device firmware
// bit-exactly.
var (
	EEGServiceUUID = ble.MustParse("df7b5d95-3afe-00a1-084c-b50895ef4f95")
	EEGCharUUID    = ble.MustParse("00ab4d15-66b4-0d8a-824f-8d6f8966c6e5")

	PPGServiceUUID = ble.MustParse("1cc50ec0-6967-9d84-a243-c2267f924d1f")
	PPGCharUUID    = ble.MustParse("6c739642-23ba-818b-2045-bfe8970263f6")

	ACCServiceUUID = ble.MustParse("75c276c3-8f97-20bc-a143-b354244886d4")
	ACCCharUUID    = ble.MustParse("d3d46a35-4394-e9aa-5a43-e7921120aaed")

	BatteryServiceUUID = ble.MustParse("0000180f-0000-1000-8000-00805f9b34fb")
	BatteryCharUUID    = ble.MustParse("00002a19-0000-1000-8000-00805f9b34fb")
)

// DeviceNamePrefix is the advertisement local-name prefix scanned for.
const DeviceNamePrefix = "LXB"
