// Package monitor infers streaming health from observed per-sensor data
// flow. It never reads control flags: "active" means
// "samples are actually arriving at a sufficient rate," nothing else.
package monitor

import (
	"sync"
	"time"

	"github.com/srg/lxb/internal/clock"
	"github.com/srg/lxb/internal/sample"
)

// rollingWindow is the width of the samples/sec rolling average.
const rollingWindow = 5 * time.Second

// statusCacheTTL is how long an aggregated Status() read is cached
// before being recomputed from per-sensor state.
const statusCacheTTL = 500 * time.Millisecond

// activityThreshold gives each sensor's samples/sec threshold for the
// active flag. EEG is the only sensor gating is_active; the rest are
// informational only.
var activityThreshold = map[sample.Sensor]float64{
	sample.EEGSensor: 8,
	sample.PPGSensor: 0.1,
	sample.ACCSensor: 0.1,
	sample.BatSensor: 0.1,
}

// rateSample is one (wallclock, rate) tuple in a sensor's rolling window.
type rateSample struct {
	at   time.Time
	rate float64
}

// sensorState tracks one sensor's throughput history.
type sensorState struct {
	mu          sync.Mutex
	total       int64
	window      []rateSample
	lastUpdate  time.Time
	rollingRate float64
	threshold   float64
}

// snapshot returns the sensor's current rate/active verdict, applying
// the staleness policy: no ping within rollingWindow forces active=false
// and rate=0 even without a new Ping call.
func (s *sensorState) snapshot(now time.Time) (rate float64, active bool, total int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastUpdate.IsZero() || now.Sub(s.lastUpdate) > rollingWindow {
		return 0, false, s.total
	}
	return s.rollingRate, s.rollingRate >= s.threshold, s.total
}

func (s *sensorState) ping(now time.Time, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var dt time.Duration
	if !s.lastUpdate.IsZero() {
		dt = now.Sub(s.lastUpdate)
	}
	rate := 0.0
	if dt > 0 {
		rate = float64(count) / dt.Seconds()
	}

	s.total += int64(count)
	s.window = append(s.window, rateSample{at: now, rate: rate})
	cutoff := now.Add(-rollingWindow)
	i := 0
	for i < len(s.window) && s.window[i].at.Before(cutoff) {
		i++
	}
	s.window = s.window[i:]

	var sum float64
	for _, rs := range s.window {
		sum += rs.rate
	}
	if len(s.window) > 0 {
		s.rollingRate = sum / float64(len(s.window))
	} else {
		s.rollingRate = 0
	}
	s.lastUpdate = now
}

// Status is the authoritative streaming-state read external consumers
// (Hub's monitoring_metrics channel, the "check_device_connection"
// subscriber protocol message) rely on.
type Status struct {
	IsActive       bool
	DataFlowHealth string // "good" | "fair" | "none"
}

// SensorSnapshot is the per-sensor detail backing a Status computation.
type SensorSnapshot struct {
	Sensor sample.Sensor
	Total  int64
	Rate   float64
	Active bool
}

// Monitor aggregates per-sensor throughput pings into a streaming
// health verdict.
type Monitor struct {
	clk clock.Clock

	mu      sync.Mutex
	sensors map[sample.Sensor]*sensorState

	cacheMu  sync.Mutex
	cachedAt time.Time
	cached   Status
}

// New creates a Monitor backed by clk.
func New(clk clock.Clock) *Monitor {
	return &Monitor{clk: clk, sensors: make(map[sample.Sensor]*sensorState)}
}

func (m *Monitor) state(sensor sample.Sensor) *sensorState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.sensors[sensor]
	if !ok {
		threshold, ok := activityThreshold[sensor]
		if !ok {
			threshold = 0.1
		}
		st = &sensorState{threshold: threshold}
		m.sensors[sensor] = st
	}
	return st
}

// Ping implements emit.Monitor: it records one emitter tick's throughput
// for sensor. timestamps is accepted for interface symmetry with the
// emitters' (sensor, count, timestamps) ping shape but is not otherwise
// consulted; the rolling rate is wallclock-driven.
func (m *Monitor) Ping(sensor sample.Sensor, count int, timestamps []float64) {
	m.state(sensor).ping(m.clk.Now(), count)
}

// Snapshot returns the current throughput detail for one sensor.
func (m *Monitor) Snapshot(sensor sample.Sensor) SensorSnapshot {
	st := m.state(sensor)
	rate, active, total := st.snapshot(m.clk.Now())
	return SensorSnapshot{Sensor: sensor, Total: total, Rate: rate, Active: active}
}

// activeSensors returns the sensors currently flagged active.
func (m *Monitor) activeSensors() []sample.Sensor {
	m.mu.Lock()
	sensors := make([]sample.Sensor, 0, len(m.sensors))
	for s := range m.sensors {
		sensors = append(sensors, s)
	}
	m.mu.Unlock()

	now := m.clk.Now()
	var active []sample.Sensor
	for _, s := range sensors {
		st := m.state(s)
		if _, ok, _ := st.snapshot(now); ok {
			active = append(active, s)
		}
	}
	return active
}

// Status returns the cached (at most 500ms stale) aggregated
// streaming-health verdict: is_active gates on EEG alone;
// data_flow_health is "good" with
// EEG active and ≥3 active sensors, "fair" with only EEG active, "none"
// otherwise.
func (m *Monitor) Status() Status {
	now := m.clk.Now()

	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	if !m.cachedAt.IsZero() && now.Sub(m.cachedAt) < statusCacheTTL {
		return m.cached
	}

	active := m.activeSensors()
	eegActive := false
	for _, s := range active {
		if s == sample.EEGSensor {
			eegActive = true
			break
		}
	}

	health := "none"
	switch {
	case eegActive && len(active) >= 3:
		health = "good"
	case eegActive:
		health = "fair"
	}

	m.cached = Status{IsActive: eegActive, DataFlowHealth: health}
	m.cachedAt = now
	return m.cached
}
