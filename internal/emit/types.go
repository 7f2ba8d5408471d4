// Package emit runs the four fixed-cadence emitter tasks
// that drain a sensor's raw and processed ring buffers, offer samples to
// the Recorder, publish frames to the Hub, and ping the Monitor.
package emit

import "github.com/srg/lxb/internal/sample"

// Frame types on the subscriber wire.
const (
	FrameTypeRaw       = "raw_data"
	FrameTypeProcessed = "processed_data"
)

// Frame is the JSON envelope handed to the Hub for both raw and processed
// data: {type, sensor_type, device_id, timestamp, data:[...]}.
type Frame struct {
	Type       string        `json:"type"`
	SensorType sample.Sensor `json:"sensor_type"`
	DeviceID   string        `json:"device_id"`
	Timestamp  float64       `json:"timestamp"`
	Data       interface{}   `json:"data"`
}

// Recorder persists a sample or frame under a named stream when a
// recording session is active. Offer must not block the emitter for
// longer than a file-handle acquisition.
type Recorder interface {
	Offer(streamName string, v interface{})
}

// Hub fans a frame out to every subscriber of channel. Publish must never
// block the emitter: a slow or unreachable subscriber is
// the Hub's problem, not the emitter's.
type Hub interface {
	Publish(channel string, frame Frame)
}

// Monitor receives a per-tick throughput ping for rolling samples/sec
// bookkeeping.
type Monitor interface {
	Ping(sensor sample.Sensor, count int, timestamps []float64)
}
