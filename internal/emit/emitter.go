package emit

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/lxb/internal/clock"
	"github.com/srg/lxb/internal/groutine"
	"github.com/srg/lxb/internal/sample"
)

// Config wires one emitter task to its sensor's pipeline.
type Config[R any, P any] struct {
	Sensor    sample.Sensor
	DeviceID  string
	Raw       *sample.RingBuffer[R]
	Processed *sample.RingBuffer[P] // nil for a sensor with no processed stream

	Recorder Recorder
	Hub      Hub
	Monitor  Monitor

	Clock  clock.Clock
	Logger *logrus.Logger

	Interval      time.Duration
	NoDataTimeout time.Duration

	// SessionActive reports whether samples should be offered to the
	// Recorder. nil is treated as always-false (no active session).
	SessionActive func() bool

	// RawStream and ProcessedStream are Recorder stream names. An empty
	// ProcessedStream skips recording processed frames entirely (the
	// battery pipeline records only its bare raw stem).
	RawStream       string
	ProcessedStream string

	// Timestamp extracts the per-sample timestamp used for the Monitor
	// ping and the outgoing frame's timestamp field.
	Timestamp func(R) float64
}

// Emitter drains a sensor's raw+processed buffers on a fixed cadence. It
// exits, without restarting, once NoDataTimeout has elapsed since the
// last non-empty drain.
type Emitter[R any, P any] struct {
	cfg          Config[R, P]
	lastDataTime time.Time
}

// NewEmitter builds an Emitter from cfg. The no-data clock starts at
// construction time, giving a freshly (re)started emitter a full grace
// period before it can time out.
func NewEmitter[R any, P any](cfg Config[R, P]) *Emitter[R, P] {
	return &Emitter[R, P]{cfg: cfg, lastDataTime: cfg.Clock.Now()}
}

// Run starts the emitter's ticker loop as a named, pprof-labeled
// goroutine and returns immediately. The loop exits once ctx is
// cancelled or the no-data timeout fires; callers awaiting shutdown should select on ctx.Done() with a
// bounded cap rather than joining this goroutine directly.
func (e *Emitter[R, P]) Run(ctx context.Context) {
	groutine.Go(ctx, "emit-"+string(e.cfg.Sensor), func(ctx context.Context) {
		ticker := time.NewTicker(e.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !e.tick() {
					return
				}
			}
		}
	})
}

// tick runs one drain/record/publish/ping cycle and reports whether the
// emitter should keep running.
func (e *Emitter[R, P]) tick() bool {
	rawBatch := e.cfg.Raw.Drain()
	var procBatch []P
	if e.cfg.Processed != nil {
		procBatch = e.cfg.Processed.Drain()
	}

	if len(rawBatch) > 0 || len(procBatch) > 0 {
		e.lastDataTime = e.cfg.Clock.Now()
		e.recordAndPublish(rawBatch, procBatch)
	}

	if e.cfg.Clock.Now().Sub(e.lastDataTime) > e.cfg.NoDataTimeout {
		if e.cfg.Logger != nil {
			e.cfg.Logger.WithField("sensor", e.cfg.Sensor).Warn("emitter: no data received within timeout, exiting")
		}
		return false
	}
	return true
}

func (e *Emitter[R, P]) recordAndPublish(rawBatch []R, procBatch []P) {
	if e.cfg.SessionActive != nil && e.cfg.SessionActive() {
		for _, s := range rawBatch {
			e.cfg.Recorder.Offer(e.cfg.RawStream, s)
		}
		if e.cfg.ProcessedStream != "" {
			for _, p := range procBatch {
				e.cfg.Recorder.Offer(e.cfg.ProcessedStream, p)
			}
		}
	}

	// latest falls back to wall-clock when this tick drained a processed
	// frame but no raw sample (the DSP tick and the emitter tick run on
	// independent cadences): a processed-only frame still needs a
	// timestamp field and has no raw sample to take it from.
	latest := float64(e.cfg.Clock.Now().UnixNano()) / 1e9
	var timestamps []float64
	if len(rawBatch) > 0 {
		timestamps = make([]float64, len(rawBatch))
		for i, s := range rawBatch {
			timestamps[i] = e.cfg.Timestamp(s)
		}
		latest = timestamps[len(timestamps)-1]
	}

	if e.cfg.Hub != nil {
		if len(rawBatch) > 0 {
			e.cfg.Hub.Publish(string(e.cfg.Sensor)+"_raw", Frame{
				Type:       FrameTypeRaw,
				SensorType: e.cfg.Sensor,
				DeviceID:   e.cfg.DeviceID,
				Timestamp:  latest,
				Data:       rawBatch,
			})
		}
		if len(procBatch) > 0 {
			e.cfg.Hub.Publish(string(e.cfg.Sensor)+"_processed", Frame{
				Type:       FrameTypeProcessed,
				SensorType: e.cfg.Sensor,
				DeviceID:   e.cfg.DeviceID,
				Timestamp:  latest,
				Data:       procBatch,
			})
		}
	}

	if e.cfg.Monitor != nil && len(rawBatch) > 0 {
		e.cfg.Monitor.Ping(e.cfg.Sensor, len(rawBatch), timestamps)
	}
}
