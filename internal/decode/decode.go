// Package decode turns raw BLE notification payloads into typed samples.
//
// All four sensors share one packet layout: a 4-byte little-endian
// device-monotonic tick (32768 Hz clock) followed by N equal-size sample
// records. Decoders never return a partial sample: an
// under-length packet, or a packet whose payload isn't an exact multiple
// of the record size, is logged and dropped entirely rather than
// producing a truncated last sample.
package decode

import (
	"encoding/binary"

	"github.com/sirupsen/logrus"
)

// DeviceClockHz is the BLE device's monotonic tick clock rate shared by
// every sensor's packet header.
const DeviceClockHz = 32768.0

const headerLen = 4

// ErrorHook, if set, is invoked whenever a packet is dropped (short or
// malformed). It exists so callers can count decode errors without the
// decoders themselves needing to return a Go error up the stack;
// decode errors are always local: logged and dropped.
type ErrorHook func(sensor string, reason string, packetLen int)

// Hook is an optional per-sample post-decode inspection point. It is
// called once per decoded sample before the sample reaches the caller;
// a hook may be used to flag artifacts with custom device-specific
// heuristics. Decoders never depend on a hook being present.
type Hook[T any] func(sample *T)

// baseTimestamp returns the packet header tick converted to seconds.
func baseTimestamp(tick uint32) float64 {
	return float64(tick) / DeviceClockHz
}

func readTick(buf []byte) uint32 {
	return binary.LittleEndian.Uint32(buf[:4])
}

func logShort(logger *logrus.Logger, sensor string, got, want int, hook ErrorHook) {
	if logger != nil {
		logger.WithFields(logrus.Fields{
			"sensor": sensor,
			"length": got,
			"min":    want,
		}).Warn("decode: packet too short, dropping")
	}
	if hook != nil {
		hook(sensor, "short_packet", got)
	}
}

func logMalformed(logger *logrus.Logger, sensor string, packetLen int, hook ErrorHook) {
	if logger != nil {
		logger.WithFields(logrus.Fields{
			"sensor": sensor,
			"length": packetLen,
		}).Warn("decode: payload not a multiple of record size, dropping")
	}
	if hook != nil {
		hook(sensor, "malformed_payload", packetLen)
	}
}

// int24 decodes a 3-byte big-endian (MSB-first) two's-complement signed
// integer.
func int24(b []byte) int32 {
	v := int32(b[0])<<16 | int32(b[1])<<8 | int32(b[2])
	if v&0x800000 != 0 {
		v -= 1 << 24
	}
	return v
}

// uint24 decodes a 3-byte big-endian (MSB-first) unsigned integer.
func uint24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}
