package dsp

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/lxb/internal/clock"
	"github.com/srg/lxb/internal/groutine"
	"github.com/srg/lxb/internal/sample"
)

// eegInterval/ppgInterval/accInterval/batInterval are the DSP
// processing cadences: EEG, PPG and ACC process every 0.5 s, battery
// every 1.0 s.
const (
	eegInterval = 500 * time.Millisecond
	ppgInterval = 500 * time.Millisecond
	accInterval = 500 * time.Millisecond
	batInterval = time.Second
)

// EEGWorker snapshots the EEG analysis buffer on a 0.5s cadence, runs
// ProcessEEG on the pool, and writes any resulting frame into the
// processed buffer. An insufficient-data tick is a silent no-op.
func EEGWorker(ctx context.Context, logger *logrus.Logger, clk clock.Clock, pool *Pool, analysis *sample.RingBuffer[sample.EEG], processed *sample.RingBuffer[*EEGFrame]) {
	groutine.Go(ctx, "dsp-eeg", func(ctx context.Context) {
		ticker := time.NewTicker(eegInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				eegTick(ctx, logger, clk, pool, analysis, processed)
			}
		}
	})
}

// eegTick runs one EEG processing cycle; split out from EEGWorker so
// tests can drive it without waiting on a real ticker.
func eegTick(ctx context.Context, logger *logrus.Logger, clk clock.Clock, pool *Pool, analysis *sample.RingBuffer[sample.EEG], processed *sample.RingBuffer[*EEGFrame]) {
	data := peekAll(analysis)
	if len(data) < eegMinSamples {
		return
	}
	ch1 := make([]float64, len(data))
	ch2 := make([]float64, len(data))
	lo1 := make([]bool, len(data))
	lo2 := make([]bool, len(data))
	for i, s := range data {
		ch1[i], ch2[i] = s.Ch1uV, s.Ch2uV
		lo1[i], lo2[i] = s.LeadOffCh1, s.LeadOffCh2
	}
	pool.Submit(ctx, logger, "dsp-eeg", func() {
		if frame, ok := ProcessEEG(float64(clk.Now().UnixNano())/1e9, ch1, ch2, lo1, lo2); ok {
			processed.Write(frame)
		}
	})
}

// PPGWorker snapshots the PPG analysis buffer on a 0.5s cadence.
func PPGWorker(ctx context.Context, logger *logrus.Logger, clk clock.Clock, pool *Pool, analysis *sample.RingBuffer[sample.PPG], processed *sample.RingBuffer[*PPGFrame]) {
	proc := NewPPGProcessor()
	groutine.Go(ctx, "dsp-ppg", func(ctx context.Context) {
		ticker := time.NewTicker(ppgInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ppgTick(ctx, logger, clk, pool, proc, analysis, processed)
			}
		}
	})
}

// ppgTick runs one PPG processing cycle against the shared PPGProcessor
// (which owns the carry-forward-last-good-frame state).
func ppgTick(ctx context.Context, logger *logrus.Logger, clk clock.Clock, pool *Pool, proc *PPGProcessor, analysis *sample.RingBuffer[sample.PPG], processed *sample.RingBuffer[*PPGFrame]) {
	data := peekAll(analysis)
	if len(data) < ppgMinSamples {
		return
	}
	red := make([]float64, len(data))
	ir := make([]float64, len(data))
	for i, s := range data {
		red[i], ir[i] = float64(s.Red), float64(s.IR)
	}
	pool.Submit(ctx, logger, "dsp-ppg", func() {
		if frame, ok := proc.Process(float64(clk.Now().UnixNano())/1e9, red, ir); ok {
			processed.Write(frame)
		}
	})
}

// ACCWorker snapshots the ACC analysis buffer on a 0.5s cadence.
func ACCWorker(ctx context.Context, logger *logrus.Logger, clk clock.Clock, pool *Pool, analysis *sample.RingBuffer[sample.ACC], processed *sample.RingBuffer[*ACCFrame]) {
	groutine.Go(ctx, "dsp-acc", func(ctx context.Context) {
		ticker := time.NewTicker(accInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				accTick(ctx, logger, clk, pool, analysis, processed)
			}
		}
	})
}

// accTick runs one ACC processing cycle.
func accTick(ctx context.Context, logger *logrus.Logger, clk clock.Clock, pool *Pool, analysis *sample.RingBuffer[sample.ACC], processed *sample.RingBuffer[*ACCFrame]) {
	data := peekAll(analysis)
	if len(data) < accMinSamples {
		return
	}
	x := make([]float64, len(data))
	y := make([]float64, len(data))
	z := make([]float64, len(data))
	for i, s := range data {
		x[i], y[i], z[i] = float64(s.X), float64(s.Y), float64(s.Z)
	}
	pool.Submit(ctx, logger, "dsp-acc", func() {
		if frame, ok := ProcessACC(float64(clk.Now().UnixNano())/1e9, x, y, z); ok {
			processed.Write(frame)
		}
	})
}

// BatWorker computes the mean/bucketed battery level on a 1s cadence,
// requiring a full analysis buffer.
func BatWorker(ctx context.Context, logger *logrus.Logger, clk clock.Clock, analysis *sample.RingBuffer[sample.Battery], processed *sample.RingBuffer[*BatFrame]) {
	groutine.Go(ctx, "dsp-bat", func(ctx context.Context) {
		ticker := time.NewTicker(batInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				batTick(clk, analysis, processed)
			}
		}
	})
}

// batTick runs one battery aggregation cycle.
func batTick(clk clock.Clock, analysis *sample.RingBuffer[sample.Battery], processed *sample.RingBuffer[*BatFrame]) {
	data := peekAll(analysis)
	levels := make([]float64, len(data))
	for i, s := range data {
		levels[i] = float64(s.LevelPercent)
	}
	if frame, ok := ProcessBAT(float64(clk.Now().UnixNano())/1e9, levels, sample.BatAnalysisCapacity); ok {
		processed.Write(frame)
	}
}

// peekAll returns every sample currently held in buf without consuming
// it (the analysis buffer is a sliding window the acquisition path keeps
// topped up; DSP only ever reads a snapshot).
func peekAll[T any](buf *sample.RingBuffer[T]) []T {
	return buf.Snapshot()
}
