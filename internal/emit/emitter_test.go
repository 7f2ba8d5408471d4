package emit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/lxb/internal/clock"
	"github.com/srg/lxb/internal/sample"
)

type fakeRecorder struct {
	mu     sync.Mutex
	offers map[string]int
}

func newFakeRecorder() *fakeRecorder { return &fakeRecorder{offers: map[string]int{}} }

func (f *fakeRecorder) Offer(stream string, v interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offers[stream]++
}

func (f *fakeRecorder) count(stream string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.offers[stream]
}

type fakeHub struct {
	mu     sync.Mutex
	frames []Frame
}

func (f *fakeHub) Publish(channel string, frame Frame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, frame)
}

func (f *fakeHub) channels() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.frames))
	for i, fr := range f.frames {
		out[i] = fr.Type
	}
	return out
}

type fakeMonitor struct {
	mu     sync.Mutex
	pings  int
	counts []int
}

func (f *fakeMonitor) Ping(sensor sample.Sensor, count int, timestamps []float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings++
	f.counts = append(f.counts, count)
}

func newTestEEGEmitter(clk clock.Clock, rec Recorder, hub Hub, mon Monitor, sessionActive func() bool) (*Emitter[sample.EEG, *struct{}], *sample.RingBuffer[sample.EEG]) {
	raw := sample.NewRingBuffer[sample.EEG](10)
	processed := sample.NewRingBuffer[*struct{}](10)
	e := NewEmitter(Config[sample.EEG, *struct{}]{
		Sensor:          sample.EEGSensor,
		DeviceID:        "dev1",
		Raw:             raw,
		Processed:       processed,
		Recorder:        rec,
		Hub:             hub,
		Monitor:         mon,
		Clock:           clk,
		Interval:        time.Millisecond,
		NoDataTimeout:   time.Second,
		SessionActive:   sessionActive,
		RawStream:       "dev1_eeg_raw",
		ProcessedStream: "dev1_eeg_processed",
		Timestamp:       func(s sample.EEG) float64 { return s.Timestamp },
	})
	return e, raw
}

func TestEmitter_Tick_EmptyBufferKeepsRunningWithinTimeout(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	rec := newFakeRecorder()
	hub := &fakeHub{}
	mon := &fakeMonitor{}
	e, _ := newTestEEGEmitter(clk, rec, hub, mon, func() bool { return true })

	assert.True(t, e.tick())
	assert.Equal(t, 0, mon.pings)
	assert.Empty(t, hub.frames)
}

func TestEmitter_Tick_ExitsAfterNoDataTimeout(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	rec := newFakeRecorder()
	hub := &fakeHub{}
	mon := &fakeMonitor{}
	e, _ := newTestEEGEmitter(clk, rec, hub, mon, func() bool { return true })

	assert.True(t, e.tick())
	clk.Advance(2 * time.Second)
	assert.False(t, e.tick())
}

func TestEmitter_Tick_RecordsWhenSessionActive(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	rec := newFakeRecorder()
	hub := &fakeHub{}
	mon := &fakeMonitor{}
	e, raw := newTestEEGEmitter(clk, rec, hub, mon, func() bool { return true })

	raw.Write(sample.EEG{Timestamp: 1, Ch1uV: 10})
	raw.Write(sample.EEG{Timestamp: 1.004, Ch1uV: 11})

	require.True(t, e.tick())
	assert.Equal(t, 2, rec.count("dev1_eeg_raw"))
	assert.Equal(t, 1, mon.pings)
	assert.Equal(t, 2, mon.counts[0])
	require.Len(t, hub.frames, 1)
	assert.Equal(t, FrameTypeRaw, hub.frames[0].Type)
	assert.Equal(t, sample.EEGSensor, hub.frames[0].SensorType)
}

func TestEmitter_Tick_SkipsRecordingWithoutActiveSession(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	rec := newFakeRecorder()
	hub := &fakeHub{}
	mon := &fakeMonitor{}
	e, raw := newTestEEGEmitter(clk, rec, hub, mon, func() bool { return false })

	raw.Write(sample.EEG{Timestamp: 1})

	require.True(t, e.tick())
	assert.Equal(t, 0, rec.count("dev1_eeg_raw"))
	require.Len(t, hub.frames, 1, "the Hub still receives the frame regardless of recording state")
}

func TestEmitter_Tick_NilSessionActiveTreatedAsNoRecording(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	rec := newFakeRecorder()
	hub := &fakeHub{}
	mon := &fakeMonitor{}
	e, raw := newTestEEGEmitter(clk, rec, hub, mon, nil)

	raw.Write(sample.EEG{Timestamp: 1})
	require.True(t, e.tick())
	assert.Equal(t, 0, rec.count("dev1_eeg_raw"))
}

func TestBatEmitter_ProcessedStreamEmptySkipsRecorderButNotHub(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	rec := newFakeRecorder()
	hub := &fakeHub{}

	raw := sample.NewRingBuffer[sample.Battery](10)
	processed := sample.NewRingBuffer[int](10)
	raw.Write(sample.Battery{Timestamp: 1, LevelPercent: 90})
	processed.Write(42)

	e := NewEmitter(Config[sample.Battery, int]{
		Sensor:          sample.BatSensor,
		DeviceID:        "dev1",
		Raw:             raw,
		Processed:       processed,
		Recorder:        rec,
		Hub:             hub,
		Clock:           clk,
		Interval:        time.Millisecond,
		NoDataTimeout:   10 * time.Second,
		SessionActive:   func() bool { return true },
		RawStream:       "dev1_bat",
		ProcessedStream: "",
		Timestamp:       func(s sample.Battery) float64 { return s.Timestamp },
	})

	require.True(t, e.tick())
	assert.Equal(t, 1, rec.count("dev1_bat"))
	require.Len(t, hub.frames, 2, "raw + processed frames both still go to the Hub")
}

func TestEmitter_Tick_ProcessedOnlyDrainStillRecordsAndPublishes(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	rec := newFakeRecorder()
	hub := &fakeHub{}
	mon := &fakeMonitor{}
	e, _ := newTestEEGEmitter(clk, rec, hub, mon, func() bool { return true })

	// A DSP frame landed in the processed buffer this tick, but the raw
	// buffer happens to be momentarily empty (BLE connection-interval
	// jitter). The processed frame must still reach the Recorder and the
	// Hub instead of being silently discarded.
	e.cfg.Processed.Write(&struct{}{})

	require.True(t, e.tick())
	assert.Equal(t, 1, rec.count("dev1_eeg_processed"))
	require.Len(t, hub.frames, 1)
	assert.Equal(t, FrameTypeProcessed, hub.frames[0].Type)
	assert.Equal(t, 0, mon.pings, "the Monitor is pinged from raw sample counts only")
}
