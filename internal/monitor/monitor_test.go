package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/lxb/internal/clock"
	"github.com/srg/lxb/internal/sample"
)

func TestMonitor_PingBelowThresholdStaysInactive(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	m := New(clk)

	m.Ping(sample.EEGSensor, 1, nil)
	clk.Advance(time.Second)
	m.Ping(sample.EEGSensor, 1, nil)

	snap := m.Snapshot(sample.EEGSensor)
	assert.False(t, snap.Active, "1 sample/sec is below the EEG threshold of 8")
}

func TestMonitor_PingAboveThresholdBecomesActive(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	m := New(clk)

	m.Ping(sample.EEGSensor, 25, nil)
	clk.Advance(200 * time.Millisecond)
	m.Ping(sample.EEGSensor, 25, nil) // 25/0.2s = 125/s

	snap := m.Snapshot(sample.EEGSensor)
	assert.True(t, snap.Active)
	assert.Greater(t, snap.Rate, 8.0)
}

func TestMonitor_StalenessForcesInactive(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	m := New(clk)

	m.Ping(sample.EEGSensor, 25, nil)
	clk.Advance(200 * time.Millisecond)
	m.Ping(sample.EEGSensor, 25, nil)
	require.True(t, m.Snapshot(sample.EEGSensor).Active)

	clk.Advance(6 * time.Second)
	snap := m.Snapshot(sample.EEGSensor)
	assert.False(t, snap.Active)
	assert.Zero(t, snap.Rate)
}

func TestMonitor_TotalAccumulates(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	m := New(clk)

	m.Ping(sample.PPGSensor, 10, nil)
	clk.Advance(time.Second)
	m.Ping(sample.PPGSensor, 5, nil)

	assert.EqualValues(t, 15, m.Snapshot(sample.PPGSensor).Total)
}

func TestMonitor_Status_GoodWhenEEGAndThreeSensorsActive(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	m := New(clk)

	for _, s := range []sample.Sensor{sample.EEGSensor, sample.PPGSensor, sample.ACCSensor, sample.BatSensor} {
		m.Ping(s, 25, nil)
	}
	clk.Advance(200 * time.Millisecond)
	for _, s := range []sample.Sensor{sample.EEGSensor, sample.PPGSensor, sample.ACCSensor, sample.BatSensor} {
		m.Ping(s, 25, nil)
	}

	status := m.Status()
	assert.True(t, status.IsActive)
	assert.Equal(t, "good", status.DataFlowHealth)
}

func TestMonitor_Status_FairWhenOnlyEEGActive(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	m := New(clk)

	m.Ping(sample.EEGSensor, 25, nil)
	clk.Advance(200 * time.Millisecond)
	m.Ping(sample.EEGSensor, 25, nil)

	status := m.Status()
	assert.True(t, status.IsActive)
	assert.Equal(t, "fair", status.DataFlowHealth)
}

func TestMonitor_Status_NoneWhenEEGInactive(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	m := New(clk)

	m.Ping(sample.PPGSensor, 25, nil)
	clk.Advance(200 * time.Millisecond)
	m.Ping(sample.PPGSensor, 25, nil)

	status := m.Status()
	assert.False(t, status.IsActive)
	assert.Equal(t, "none", status.DataFlowHealth)
}

func TestMonitor_Status_CachedWithinTTL(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	m := New(clk)

	m.Ping(sample.EEGSensor, 25, nil)
	clk.Advance(200 * time.Millisecond)
	m.Ping(sample.EEGSensor, 25, nil)

	first := m.Status()
	// Stay within the 500ms status cache TTL.
	clk.Advance(100 * time.Millisecond)
	second := m.Status()
	assert.Equal(t, first, second)
}
