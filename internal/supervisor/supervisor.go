// Package supervisor wires a single BLE device pipeline end to end:
// it owns the Registry, Scanner, Recorder Manager, Hub
// and Monitor, runs the auto-connect sweep on a robfig/cron schedule,
// and tears a pipeline down cleanly when the device drops off.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/srg/lxb/internal/ble"
	"github.com/srg/lxb/internal/clock"
	"github.com/srg/lxb/internal/config"
	"github.com/srg/lxb/internal/dsp"
	"github.com/srg/lxb/internal/emit"
	"github.com/srg/lxb/internal/hub"
	"github.com/srg/lxb/internal/monitor"
	"github.com/srg/lxb/internal/recorder"
	"github.com/srg/lxb/internal/registry"
	"github.com/srg/lxb/internal/sample"
)

// pipelineShutdownGrace bounds how long Stop waits for a torn-down
// pipeline's emitters and DSP workers to notice ctx cancellation.
const pipelineShutdownGrace = 2 * time.Second

// metricsInterval is the cadence of the monitoring_metrics priority
// broadcast: fast enough that a fresh subscriber sees a
// frame well within its first monitor-cache window.
const metricsInterval = time.Second

// Config bundles the auto-connect loop's tunables, normally built from
// the daemon's loaded config.Config.
type Config struct {
	ReconnectInterval time.Duration
	ScanCacheRefresh  time.Duration
	CooldownFailures  int
	CooldownDuration  time.Duration
	ConnectTimeout    time.Duration
	DSPPoolSize       int
}

// FromAppConfig adapts the daemon's on-disk configuration into a
// supervisor Config.
func FromAppConfig(c *config.Config) Config {
	return Config{
		ReconnectInterval: c.Supervisor.ReconnectInterval,
		ScanCacheRefresh:  c.Supervisor.ScanCacheRefresh,
		CooldownFailures:  c.Supervisor.CooldownFailures,
		CooldownDuration:  c.Supervisor.CooldownDuration,
		ConnectTimeout:    c.BLE.ConnectTimeout,
	}
}

// pipeline holds the teardown handle for one connected device's
// emitters and DSP workers.
type pipeline struct {
	cancel   context.CancelFunc
	deviceID string
}

// Supervisor ties the acquisition, processing, recording, and
// distribution layers together for exactly one connected device at a
// time; at most one session is ever active.
type Supervisor struct {
	logger *logrus.Logger
	clk    clock.Clock
	cfg    Config

	scanner  *ble.Scanner
	registry *registry.Registry
	recorder *recorder.Manager
	hub      *hub.Hub
	monitor  *monitor.Monitor
	pool     *dsp.Pool
	cron     *cron.Cron

	mu            sync.Mutex
	session       *ble.Session
	pipe          *pipeline
	connectedName string
	connectedAddr string
	batteryLevel  uint8
}

// New creates a Supervisor and registers it as the Hub's connection
// status provider.
func New(logger *logrus.Logger, clk clock.Clock, cfg Config, scanner *ble.Scanner, reg *registry.Registry, rec *recorder.Manager, h *hub.Hub, mon *monitor.Monitor) *Supervisor {
	if logger == nil {
		logger = logrus.New()
	}
	if clk == nil {
		clk = clock.System{}
	}
	s := &Supervisor{
		logger:   logger,
		clk:      clk,
		cfg:      cfg,
		scanner:  scanner,
		registry: reg,
		recorder: rec,
		hub:      h,
		monitor:  mon,
		pool:     dsp.NewPool(cfg.DSPPoolSize),
		cron:     cron.New(),
	}
	h.SetStatusProvider(s)
	return s
}

// Start schedules the auto-connect sweep and scan-cache refresh jobs
// and runs one of each immediately, so a daemon that boots with a
// populated registry doesn't wait a full interval for its first
// connection attempt.
func (s *Supervisor) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(everySpec(s.cfg.ReconnectInterval), func() { s.sweep(ctx) }); err != nil {
		return fmt.Errorf("supervisor: schedule reconnect sweep: %w", err)
	}
	if _, err := s.cron.AddFunc(everySpec(s.cfg.ScanCacheRefresh), func() { s.refreshScan(ctx) }); err != nil {
		return fmt.Errorf("supervisor: schedule scan refresh: %w", err)
	}
	if _, err := s.cron.AddFunc(everySpec(metricsInterval), s.publishMonitoringMetrics); err != nil {
		return fmt.Errorf("supervisor: schedule metrics broadcast: %w", err)
	}
	s.cron.Start()

	s.refreshScan(ctx)
	s.sweep(ctx)
	return nil
}

func everySpec(d time.Duration) string { return fmt.Sprintf("@every %s", d) }

// Stop halts the cron scheduler and tears down any active pipeline and
// connection, in that order so the sweep can't race a fresh connect
// attempt against the shutdown.
func (s *Supervisor) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()

	s.mu.Lock()
	session := s.session
	s.mu.Unlock()
	if session == nil {
		return
	}
	s.stopPipeline()
	if err := session.Disconnect(); err != nil {
		s.logger.WithError(err).Warn("supervisor: disconnect during shutdown failed")
	}
}

func (s *Supervisor) refreshScan(ctx context.Context) {
	if err := s.scanner.Scan(ctx, 0); err != nil {
		s.logger.WithError(err).Debug("supervisor: scan refresh failed")
	}
}

// sweep runs one auto-connect pass: if the current
// device has silently dropped, it first runs disconnect cleanup; if no
// device is connected, it walks the registry (skipping devices in
// cooldown), rebinding any address the scanner has seen move, and
// stops at the first successful connection.
func (s *Supervisor) sweep(ctx context.Context) {
	s.mu.Lock()
	session := s.session
	name := s.connectedName
	s.mu.Unlock()

	if session != nil {
		if session.State() != ble.StateDisconnected {
			return
		}
		s.handleDisconnect(name)
	}

	if s.registry.Len() == 0 {
		return
	}

	for _, e := range s.registry.Devices() {
		if s.registry.InCooldown(e.Name) {
			continue
		}

		address := e.Address
		if d, ok := s.scanner.LookupByName(e.Name); ok && d.Address != address {
			s.registry.RebindByName(e.Name, d.Address)
			if err := s.registry.Save(); err != nil {
				s.logger.WithError(err).Warn("supervisor: saving registry after rebind failed")
			}
			address = d.Address
		}

		if err := s.connectDevice(ctx, e.Name, address); err != nil {
			s.logger.WithError(err).WithField("device", e.Name).Debug("supervisor: auto-connect attempt failed")
			s.registry.RecordFailure(e.Name, s.cfg.CooldownFailures, s.cfg.CooldownDuration)
			continue
		}
		s.registry.RecordSuccess(e.Name)
		return
	}
}

// connectDevice dials address, and on success starts its pipeline and
// makes it the Supervisor's active device.
func (s *Supervisor) connectDevice(ctx context.Context, name, address string) error {
	session := ble.NewSession(s.logger, s.clk)
	opts := ble.ConnectOptions{Address: address, ConnectTimeout: s.cfg.ConnectTimeout}
	if err := session.Connect(ctx, opts); err != nil {
		return err
	}

	s.mu.Lock()
	s.session = session
	s.connectedName = name
	s.connectedAddr = address
	s.mu.Unlock()

	s.startPipeline(ctx, name, session)

	s.hub.BroadcastEvent("device_connected", name, map[string]interface{}{"address": address})
	s.logger.WithFields(logrus.Fields{"device": name, "address": address}).Info("supervisor: device connected")
	return nil
}

// startPipeline builds the raw/analysis/processed ring buffers for all
// four sensors, wires the session's callbacks to feed them, and starts
// the emitters and DSP workers under a cancellable child context.
func (s *Supervisor) startPipeline(ctx context.Context, deviceID string, session *ble.Session) {
	pipeCtx, cancel := context.WithCancel(ctx)

	eegRaw := sample.NewRingBuffer[sample.EEG](sample.EEGRawCapacity)
	eegAnalysis := sample.NewRingBuffer[sample.EEG](sample.EEGAnalysisCapacity)
	eegProcessed := sample.NewRingBuffer[*dsp.EEGFrame](sample.ProcessedCapacity)

	ppgRaw := sample.NewRingBuffer[sample.PPG](sample.PPGRawCapacity)
	ppgAnalysis := sample.NewRingBuffer[sample.PPG](sample.PPGAnalysisCapacity)
	ppgProcessed := sample.NewRingBuffer[*dsp.PPGFrame](sample.ProcessedCapacity)

	accRaw := sample.NewRingBuffer[sample.ACC](sample.ACCRawCapacity)
	accAnalysis := sample.NewRingBuffer[sample.ACC](sample.ACCAnalysisCapacity)
	accProcessed := sample.NewRingBuffer[*dsp.ACCFrame](sample.ProcessedCapacity)

	batRaw := sample.NewRingBuffer[sample.Battery](sample.BatRawCapacity)
	batAnalysis := sample.NewRingBuffer[sample.Battery](sample.BatAnalysisCapacity)
	batProcessed := sample.NewRingBuffer[*dsp.BatFrame](sample.ProcessedCapacity)

	session.OnEEG(func(batch []sample.EEG) {
		for _, v := range batch {
			eegRaw.Write(v)
			eegAnalysis.Write(v)
		}
	})
	session.OnPPG(func(batch []sample.PPG) {
		for _, v := range batch {
			ppgRaw.Write(v)
			ppgAnalysis.Write(v)
		}
	})
	session.OnACC(func(batch []sample.ACC) {
		for _, v := range batch {
			accRaw.Write(v)
			accAnalysis.Write(v)
		}
	})
	session.OnBattery(func(batch []sample.Battery) {
		for _, v := range batch {
			batRaw.Write(v)
			batAnalysis.Write(v)
		}
		if len(batch) > 0 {
			s.mu.Lock()
			s.batteryLevel = batch[len(batch)-1].LevelPercent
			s.mu.Unlock()
		}
	})

	deps := emit.Deps{
		DeviceID:      deviceID,
		Recorder:      s.recorder,
		Hub:           s.hub,
		Monitor:       s.monitor,
		Clock:         s.clk,
		Logger:        s.logger,
		SessionActive: s.recorder.Active,
	}

	emit.NewEEGEmitter(deps, eegRaw, eegProcessed).Run(pipeCtx)
	emit.NewPPGEmitter(deps, ppgRaw, ppgProcessed).Run(pipeCtx)
	emit.NewACCEmitter(deps, accRaw, accProcessed).Run(pipeCtx)
	emit.NewBatEmitter(deps, batRaw, batProcessed).Run(pipeCtx)

	dsp.EEGWorker(pipeCtx, s.logger, s.clk, s.pool, eegAnalysis, eegProcessed)
	dsp.PPGWorker(pipeCtx, s.logger, s.clk, s.pool, ppgAnalysis, ppgProcessed)
	dsp.ACCWorker(pipeCtx, s.logger, s.clk, s.pool, accAnalysis, accProcessed)
	dsp.BatWorker(pipeCtx, s.logger, s.clk, batAnalysis, batProcessed)

	s.mu.Lock()
	s.pipe = &pipeline{cancel: cancel, deviceID: deviceID}
	s.mu.Unlock()
}

// stopPipeline cancels the active pipeline's context and gives its
// emitters and DSP workers a fixed grace period (pipelineShutdownGrace)
// to notice before teardown proceeds.
func (s *Supervisor) stopPipeline() {
	s.mu.Lock()
	p := s.pipe
	s.pipe = nil
	s.mu.Unlock()
	if p == nil {
		return
	}
	p.cancel()
	time.Sleep(pipelineShutdownGrace)
}

// handleDisconnect tears the pipeline down and clears the active
// session after an unexpected (or explicit) device disconnect,
// broadcasting device_disconnected to every Hub subscriber.
func (s *Supervisor) handleDisconnect(deviceID string) {
	s.stopPipeline()

	if s.recorder.Active() {
		if _, err := s.recorder.StopRecording(); err != nil {
			s.logger.WithError(err).Warn("supervisor: closing recording after disconnect failed")
		}
	}

	s.mu.Lock()
	s.session = nil
	s.connectedName = ""
	s.connectedAddr = ""
	s.mu.Unlock()

	s.hub.BroadcastEvent("device_disconnected", deviceID, nil)
	s.logger.WithField("device", deviceID).Warn("supervisor: device disconnected")
}

// Disconnect tears down the currently connected device on demand (a
// user-initiated disconnect, as opposed to sweep's detection of an
// unexpected one).
func (s *Supervisor) Disconnect() error {
	s.mu.Lock()
	session := s.session
	name := s.connectedName
	s.mu.Unlock()
	if session == nil {
		return ble.ErrNotConnected
	}
	err := session.Disconnect()
	s.handleDisconnect(name)
	return err
}

// StartRecording begins a recording session against the currently
// connected device.
func (s *Supervisor) StartRecording(sessionName string, format recorder.Format) (*recorder.Session, error) {
	s.mu.Lock()
	deviceID := s.connectedName
	s.mu.Unlock()
	if deviceID == "" {
		return nil, fmt.Errorf("supervisor: no device connected")
	}
	return s.recorder.StartRecording(sessionName, deviceID, format)
}

// StopRecording closes the active recording session, if any.
func (s *Supervisor) StopRecording() (*recorder.Manifest, error) {
	return s.recorder.StopRecording()
}

// DeviceConnectionStatus implements hub.StatusProvider, answering the
// "check_device_connection" control message.
func (s *Supervisor) DeviceConnectionStatus() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return map[string]interface{}{"connected": false}
	}
	return map[string]interface{}{
		"connected":   s.session.State() == ble.StateConnected,
		"device_name": s.connectedName,
		"address":     s.connectedAddr,
		"state":       s.session.State().String(),
	}
}

// RegisterDevice adds name/address to the registry the auto-connect
// sweep draws from.
func (s *Supervisor) RegisterDevice(name, address string) error {
	s.registry.Register(name, address)
	return s.registry.Save()
}

// Devices lists every device the auto-connect sweep knows about.
func (s *Supervisor) Devices() []registry.Entry {
	return s.registry.Devices()
}

// MonitorStatus exposes the Monitor's aggregated streaming-health
// verdict.
func (s *Supervisor) MonitorStatus() monitor.Status {
	return s.monitor.Status()
}

// publishMonitoringMetrics assembles the monitoring_metrics frame
// (per-sensor sampling rates, streaming_status, device_connected,
// streaming_reason, data_flow_health, active_sensors, battery_level)
// and hands it to the Hub's tolerant priority broadcast.
func (s *Supervisor) publishMonitoringMetrics() {
	status := s.monitor.Status()

	s.mu.Lock()
	connected := s.session != nil && s.session.State() == ble.StateConnected
	battery := s.batteryLevel
	s.mu.Unlock()

	sensors := []sample.Sensor{sample.EEGSensor, sample.PPGSensor, sample.ACCSensor, sample.BatSensor}
	active := make([]string, 0, len(sensors))
	data := map[string]interface{}{}
	for _, sensor := range sensors {
		snap := s.monitor.Snapshot(sensor)
		data[string(sensor)+"_sampling_rate"] = snap.Rate
		if snap.Active {
			active = append(active, string(sensor))
		}
	}

	reason := "no_data_flow"
	switch {
	case status.IsActive:
		reason = "eeg_streaming"
	case !connected:
		reason = "device_disconnected"
	}

	data["streaming_status"] = status.IsActive
	data["streaming_reason"] = reason
	data["device_connected"] = connected
	data["data_flow_health"] = status.DataFlowHealth
	data["active_sensors"] = active
	data["battery_level"] = battery

	s.hub.PublishPriority(hub.MonitoringMetricsChannel, hub.Frame{
		Type:      "monitoring_metrics",
		Timestamp: float64(s.clk.Now().UnixNano()) / 1e9,
		Data:      data,
	})
}
