package debugbridge

import (
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/srg/lxb/internal/ble"
	"github.com/srg/lxb/internal/sample"
)

// Bridge taps one sensor's decoded stream off a live *ble.Session and
// writes each batch, newline-delimited JSON, into a PTY so an external
// oscilloscope-style tool can `cat` or open the device file directly.
type Bridge struct {
	logger *logrus.Logger
	pty    *AsyncPTY
	unsub  func()
	sensor sample.Sensor
}

// Start opens a PTY and subscribes to sensor on session, returning the
// slave device path (e.g. "/dev/pts/7"). Call Stop to tear both down.
func Start(logger *logrus.Logger, session *ble.Session, sensor sample.Sensor) (*Bridge, string, error) {
	if logger == nil {
		logger = logrus.New()
	}

	p, err := NewAsyncPTY(&Options{WriteCap: 1 << 20, Logger: logger})
	if err != nil {
		return nil, "", fmt.Errorf("debugbridge: start: %w", err)
	}

	b := &Bridge{logger: logger, pty: p, sensor: sensor}

	switch sensor {
	case sample.EEGSensor:
		b.unsub = session.OnEEG(func(batch []sample.EEG) { b.emit(batch) })
	case sample.PPGSensor:
		b.unsub = session.OnPPG(func(batch []sample.PPG) { b.emit(batch) })
	case sample.ACCSensor:
		b.unsub = session.OnACC(func(batch []sample.ACC) { b.emit(batch) })
	case sample.BatSensor:
		b.unsub = session.OnBattery(func(batch []sample.Battery) { b.emit(batch) })
	default:
		_ = p.Close()
		return nil, "", fmt.Errorf("debugbridge: unknown sensor %q", sensor)
	}

	return b, p.TTYName(), nil
}

func (b *Bridge) emit(batch interface{}) {
	data, err := json.Marshal(batch)
	if err != nil {
		b.logger.WithError(err).Debug("debugbridge: marshal failed")
		return
	}
	data = append(data, '\n')
	if n, err := b.pty.Write(data); err != nil || n < len(data) {
		b.logger.WithField("sensor", b.sensor).Debug("debugbridge: pty write dropped bytes")
	}
}

// Stats reports the underlying PTY's queue depth and drop counters, for
// a "status"-style command to surface backpressure.
func (b *Bridge) Stats() Stats { return b.pty.Stats() }

// Stop unsubscribes from the session and closes the PTY.
func (b *Bridge) Stop() error {
	if b.unsub != nil {
		b.unsub()
	}
	return b.pty.Close()
}
