package emit

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/lxb/internal/clock"
	"github.com/srg/lxb/internal/dsp"
	"github.com/srg/lxb/internal/sample"
)

// Per-sensor cadence and no-data timeout table.
const (
	eegInterval = 40 * time.Millisecond
	ppgInterval = 20 * time.Millisecond
	accInterval = 33 * time.Millisecond
	batInterval = 100 * time.Millisecond

	eegNoDataTimeout = 5 * time.Second
	ppgNoDataTimeout = 5 * time.Second
	accNoDataTimeout = 5 * time.Second
	batNoDataTimeout = 10 * time.Second
)

// Deps bundles the collaborators every per-sensor constructor needs,
// keeping their argument lists from sprawling.
type Deps struct {
	DeviceID      string
	Recorder      Recorder
	Hub           Hub
	Monitor       Monitor
	Clock         clock.Clock
	Logger        *logrus.Logger
	SessionActive func() bool
}

// NewEEGEmitter wires the EEG raw/processed buffers into a 40ms-cadence
// emitter with a 5s no-data timeout.
func NewEEGEmitter(d Deps, raw *sample.RingBuffer[sample.EEG], processed *sample.RingBuffer[*dsp.EEGFrame]) *Emitter[sample.EEG, *dsp.EEGFrame] {
	return NewEmitter(Config[sample.EEG, *dsp.EEGFrame]{
		Sensor:          sample.EEGSensor,
		DeviceID:        d.DeviceID,
		Raw:             raw,
		Processed:       processed,
		Recorder:        d.Recorder,
		Hub:             d.Hub,
		Monitor:         d.Monitor,
		Clock:           d.Clock,
		Logger:          d.Logger,
		Interval:        eegInterval,
		NoDataTimeout:   eegNoDataTimeout,
		SessionActive:   d.SessionActive,
		RawStream:       d.DeviceID + "_eeg_raw",
		ProcessedStream: d.DeviceID + "_eeg_processed",
		Timestamp:       func(s sample.EEG) float64 { return s.Timestamp },
	})
}

// NewPPGEmitter wires the PPG raw/processed buffers into a 20ms-cadence
// emitter with a 5s no-data timeout.
func NewPPGEmitter(d Deps, raw *sample.RingBuffer[sample.PPG], processed *sample.RingBuffer[*dsp.PPGFrame]) *Emitter[sample.PPG, *dsp.PPGFrame] {
	return NewEmitter(Config[sample.PPG, *dsp.PPGFrame]{
		Sensor:          sample.PPGSensor,
		DeviceID:        d.DeviceID,
		Raw:             raw,
		Processed:       processed,
		Recorder:        d.Recorder,
		Hub:             d.Hub,
		Monitor:         d.Monitor,
		Clock:           d.Clock,
		Logger:          d.Logger,
		Interval:        ppgInterval,
		NoDataTimeout:   ppgNoDataTimeout,
		SessionActive:   d.SessionActive,
		RawStream:       d.DeviceID + "_ppg_raw",
		ProcessedStream: d.DeviceID + "_ppg_processed",
		Timestamp:       func(s sample.PPG) float64 { return s.Timestamp },
	})
}

// NewACCEmitter wires the ACC raw/processed buffers into a 33ms-cadence
// emitter with a 5s no-data timeout.
func NewACCEmitter(d Deps, raw *sample.RingBuffer[sample.ACC], processed *sample.RingBuffer[*dsp.ACCFrame]) *Emitter[sample.ACC, *dsp.ACCFrame] {
	return NewEmitter(Config[sample.ACC, *dsp.ACCFrame]{
		Sensor:          sample.ACCSensor,
		DeviceID:        d.DeviceID,
		Raw:             raw,
		Processed:       processed,
		Recorder:        d.Recorder,
		Hub:             d.Hub,
		Monitor:         d.Monitor,
		Clock:           d.Clock,
		Logger:          d.Logger,
		Interval:        accInterval,
		NoDataTimeout:   accNoDataTimeout,
		SessionActive:   d.SessionActive,
		RawStream:       d.DeviceID + "_acc_raw",
		ProcessedStream: d.DeviceID + "_acc_processed",
		Timestamp:       func(s sample.ACC) float64 { return s.Timestamp },
	})
}

// NewBatEmitter wires the battery raw/processed buffers into a
// 100ms-cadence emitter with a 10s no-data timeout. The battery
// pipeline has no separate recorder file for its processed stream: the
// bare "{device_id}_bat" stem carries the raw samples only,
// while the processed BatFrame (mean level, bucket) is still published
// to the Hub for live display.
func NewBatEmitter(d Deps, raw *sample.RingBuffer[sample.Battery], processed *sample.RingBuffer[*dsp.BatFrame]) *Emitter[sample.Battery, *dsp.BatFrame] {
	return NewEmitter(Config[sample.Battery, *dsp.BatFrame]{
		Sensor:          sample.BatSensor,
		DeviceID:        d.DeviceID,
		Raw:             raw,
		Processed:       processed,
		Recorder:        d.Recorder,
		Hub:             d.Hub,
		Monitor:         d.Monitor,
		Clock:           d.Clock,
		Logger:          d.Logger,
		Interval:        batInterval,
		NoDataTimeout:   batNoDataTimeout,
		SessionActive:   d.SessionActive,
		RawStream:       d.DeviceID + "_bat",
		ProcessedStream: "",
		Timestamp:       func(s sample.Battery) float64 { return s.Timestamp },
	})
}
