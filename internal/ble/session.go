package ble

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/lxb/internal/clock"
	"github.com/srg/lxb/internal/decode"
	"github.com/srg/lxb/internal/groutine"
	"github.com/srg/lxb/internal/sample"
)

// stabilizationDelay is how long Connect waits after all characteristics
// are subscribed before returning, giving the device time to settle its
// notification cadence.
const stabilizationDelay = 2 * time.Second

// DeviceInfo describes the peripheral a Session is (or was) connected to.
type DeviceInfo struct {
	Address         string
	Name            string
	ServiceCount    int
	Characteristics []string
}

// ConnectOptions configures a single connection attempt.
type ConnectOptions struct {
	Address        string
	ConnectTimeout time.Duration
}

// DefaultConnectOptions returns the default connection timeout.
func DefaultConnectOptions(address string) ConnectOptions {
	return ConnectOptions{Address: address, ConnectTimeout: 15 * time.Second}
}

// Session owns a single BLE connection to one LXB peripheral and
// dispatches decoded samples to registered callbacks. Exactly one
// Session maps to one device: the supervisor owns the
// lifecycle of (re)creating Sessions on reconnect.
type Session struct {
	logger *logrus.Logger
	clk    clock.Clock

	mu     sync.RWMutex
	state  State
	client ble.Client
	info   DeviceInfo

	eegChar *ble.Characteristic
	ppgChar *ble.Characteristic
	accChar *ble.Characteristic
	batChar *ble.Characteristic

	subMu        sync.Mutex
	eegSubs      map[int]func([]sample.EEG)
	ppgSubs      map[int]func([]sample.PPG)
	accSubs      map[int]func([]sample.ACC)
	batSubs      map[int]func([]sample.Battery)
	nextSubID    int
	decodeErrors func(sensor, reason string, packetLen int)
}

// NewSession creates a disconnected Session.
func NewSession(logger *logrus.Logger, clk clock.Clock) *Session {
	if logger == nil {
		logger = logrus.New()
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Session{
		logger:  logger,
		clk:     clk,
		state:   StateDisconnected,
		eegSubs: make(map[int]func([]sample.EEG)),
		ppgSubs: make(map[int]func([]sample.PPG)),
		accSubs: make(map[int]func([]sample.ACC)),
		batSubs: make(map[int]func([]sample.Battery)),
	}
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !canTransition(s.state, next) {
		s.logger.WithFields(logrus.Fields{"from": s.state, "to": next}).Warn("ble: illegal state transition requested")
	}
	s.state = next
}

// OnDecodeError registers a sink for decode-layer drops across all four
// sensors.
func (s *Session) OnDecodeError(fn func(sensor, reason string, packetLen int)) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.decodeErrors = fn
}

// OnEEG registers a callback invoked with every decoded EEG batch. The
// returned func unsubscribes it.
func (s *Session) OnEEG(fn func([]sample.EEG)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	s.eegSubs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.eegSubs, id)
	}
}

// OnPPG registers a callback invoked with every decoded PPG batch.
func (s *Session) OnPPG(fn func([]sample.PPG)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	s.ppgSubs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.ppgSubs, id)
	}
}

// OnACC registers a callback invoked with every decoded ACC batch.
func (s *Session) OnACC(fn func([]sample.ACC)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	s.accSubs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.accSubs, id)
	}
}

// OnBattery registers a callback invoked with every decoded battery
// sample.
func (s *Session) OnBattery(fn func([]sample.Battery)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	s.batSubs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.batSubs, id)
	}
}

// Connect dials the device, discovers its GATT profile, and subscribes
// to EEG, PPG and ACC notifications in that fixed order, then attempts a
// one-shot battery read followed by a battery notification subscription.
// A battery failure is logged and does not fail Connect: battery
// telemetry is best-effort.
func (s *Session) Connect(ctx context.Context, opts ConnectOptions) error {
	if s.State() != StateDisconnected {
		return ErrAlreadyConnected
	}
	s.setState(StateConnecting)

	if opts.ConnectTimeout <= 0 {
		opts = DefaultConnectOptions(opts.Address)
	}

	dialCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-dialCtx.Done():
		}
	}()

	client, err := ble.Dial(dialCtx, ble.NewAddr(opts.Address))
	if err != nil {
		s.setState(StateDisconnected)
		return fmt.Errorf("ble: dial %s: %w", opts.Address, NormalizeError(err))
	}

	profile, err := client.DiscoverProfile(true)
	if err != nil {
		client.CancelConnection()
		s.setState(StateDisconnected)
		return fmt.Errorf("ble: discover profile: %w", NormalizeError(err))
	}

	s.mu.Lock()
	s.client = client
	s.info = DeviceInfo{Address: opts.Address, ServiceCount: len(profile.Services)}
	s.mu.Unlock()

	find := func(svc, ch ble.UUID) (*ble.Characteristic, error) {
		for _, service := range profile.Services {
			if !service.UUID.Equal(svc) {
				continue
			}
			for _, c := range service.Characteristics {
				if c.UUID.Equal(ch) {
					s.mu.Lock()
					s.info.Characteristics = append(s.info.Characteristics, c.UUID.String())
					s.mu.Unlock()
					return c, nil
				}
			}
			return nil, fmt.Errorf("%w: %s", ErrCharMissing, ch.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrServiceMissing, svc.String())
	}

	eegChar, err := find(EEGServiceUUID, EEGCharUUID)
	if err != nil {
		client.CancelConnection()
		s.setState(StateDisconnected)
		return err
	}
	ppgChar, err := find(PPGServiceUUID, PPGCharUUID)
	if err != nil {
		client.CancelConnection()
		s.setState(StateDisconnected)
		return err
	}
	accChar, err := find(ACCServiceUUID, ACCCharUUID)
	if err != nil {
		client.CancelConnection()
		s.setState(StateDisconnected)
		return err
	}

	if err := client.Subscribe(eegChar, false, s.handleEEG); err != nil {
		client.CancelConnection()
		s.setState(StateDisconnected)
		return fmt.Errorf("ble: subscribe eeg: %w", NormalizeError(err))
	}
	if err := client.Subscribe(ppgChar, false, s.handlePPG); err != nil {
		client.CancelConnection()
		s.setState(StateDisconnected)
		return fmt.Errorf("ble: subscribe ppg: %w", NormalizeError(err))
	}
	if err := client.Subscribe(accChar, false, s.handleACC); err != nil {
		client.CancelConnection()
		s.setState(StateDisconnected)
		return fmt.Errorf("ble: subscribe acc: %w", NormalizeError(err))
	}

	s.mu.Lock()
	s.eegChar, s.ppgChar, s.accChar = eegChar, ppgChar, accChar
	s.mu.Unlock()

	if batChar, err := find(BatteryServiceUUID, BatteryCharUUID); err == nil {
		s.mu.Lock()
		s.batChar = batChar
		s.mu.Unlock()
		if data, rerr := client.ReadCharacteristic(batChar); rerr == nil {
			s.handleBattery(data)
		} else {
			s.logger.WithError(rerr).Warn("ble: initial battery read failed, continuing")
		}
		if serr := client.Subscribe(batChar, false, s.handleBattery); serr != nil {
			s.logger.WithError(serr).Warn("ble: battery subscribe failed, continuing without live battery updates")
		}
	} else {
		s.logger.WithError(err).Warn("ble: battery service unavailable on this device, continuing without it")
	}

	select {
	case <-time.After(stabilizationDelay):
	case <-ctx.Done():
		client.CancelConnection()
		s.setState(StateDisconnected)
		return ctx.Err()
	}

	s.setState(StateConnected)
	s.watchDisconnect(client)
	s.logger.WithField("address", opts.Address).Info("ble: device connected and streaming")
	return nil
}

// watchDisconnect observes the client's Disconnected() channel (exposed
// by the darwin backend; absent elsewhere) so an unexpected link loss
// flips the state machine to DISCONNECTED without a user Disconnect
// call; the Supervisor's sweep reads that state to trigger cleanup and
// the reconnect loop.
func (s *Session) watchDisconnect(client ble.Client) {
	watcher, ok := client.(interface{ Disconnected() <-chan struct{} })
	if !ok {
		s.logger.Debug("ble: client exposes no Disconnected() channel, relying on subscription errors for loss detection")
		return
	}
	groutine.Go(context.Background(), "ble-disconnect-watch", func(ctx context.Context) {
		<-watcher.Disconnected()
		s.mu.Lock()
		unexpected := s.state == StateConnected && s.client == client
		if unexpected {
			s.state = StateDisconnected
			s.client = nil
			s.eegChar, s.ppgChar, s.accChar, s.batChar = nil, nil, nil, nil
		}
		s.mu.Unlock()
		if unexpected {
			s.logger.Warn("ble: device connection lost")
		}
	})
}

func (s *Session) handleEEG(data []byte) {
	samples := decode.EEG(s.logger, data, nil, s.notifyDecodeError)
	if len(samples) == 0 {
		return
	}
	s.subMu.Lock()
	subs := make([]func([]sample.EEG), 0, len(s.eegSubs))
	for _, fn := range s.eegSubs {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()
	for _, fn := range subs {
		fn(samples)
	}
}

func (s *Session) handlePPG(data []byte) {
	samples := decode.PPG(s.logger, data, nil, s.notifyDecodeError)
	if len(samples) == 0 {
		return
	}
	s.subMu.Lock()
	subs := make([]func([]sample.PPG), 0, len(s.ppgSubs))
	for _, fn := range s.ppgSubs {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()
	for _, fn := range subs {
		fn(samples)
	}
}

func (s *Session) handleACC(data []byte) {
	samples := decode.ACC(s.logger, data, nil, s.notifyDecodeError)
	if len(samples) == 0 {
		return
	}
	s.subMu.Lock()
	subs := make([]func([]sample.ACC), 0, len(s.accSubs))
	for _, fn := range s.accSubs {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()
	for _, fn := range subs {
		fn(samples)
	}
}

func (s *Session) handleBattery(data []byte) {
	samples := decode.Battery(s.logger, data, s.clk, nil, s.notifyDecodeError)
	if len(samples) == 0 {
		return
	}
	s.subMu.Lock()
	subs := make([]func([]sample.Battery), 0, len(s.batSubs))
	for _, fn := range s.batSubs {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()
	for _, fn := range subs {
		fn(samples)
	}
}

func (s *Session) notifyDecodeError(sensor, reason string, packetLen int) {
	s.subMu.Lock()
	fn := s.decodeErrors
	s.subMu.Unlock()
	if fn != nil {
		fn(sensor, reason, packetLen)
	}
}

// ReadBatteryOnce issues a blocking read of the battery characteristic,
// independent of the notification stream. It does not require an active
// subscription and can be used to probe battery level immediately after
// connecting or on demand.
func (s *Session) ReadBatteryOnce(ctx context.Context) (sample.Battery, error) {
	s.mu.RLock()
	client, batChar := s.client, s.batChar
	s.mu.RUnlock()

	if client == nil || batChar == nil {
		return sample.Battery{}, ErrNotConnected
	}

	type result struct {
		data []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		data, err := client.ReadCharacteristic(batChar)
		ch <- result{data, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return sample.Battery{}, fmt.Errorf("ble: read battery: %w", NormalizeError(r.err))
		}
		samples := decode.Battery(s.logger, r.data, s.clk, nil, nil)
		if len(samples) == 0 {
			return sample.Battery{}, fmt.Errorf("ble: empty battery read")
		}
		return samples[0], nil
	case <-ctx.Done():
		return sample.Battery{}, ctx.Err()
	}
}

// DeviceInfo returns a snapshot of the connected device's metadata.
func (s *Session) DeviceInfo() DeviceInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info
}

// Disconnect unsubscribes from every characteristic and tears down the
// connection. It is safe to call on an already-disconnected Session.
func (s *Session) Disconnect() error {
	if s.State() == StateDisconnected {
		return nil
	}
	s.setState(StateDisconnecting)

	s.mu.Lock()
	client := s.client
	chars := []*ble.Characteristic{s.eegChar, s.ppgChar, s.accChar, s.batChar}
	s.mu.Unlock()

	if client != nil {
		for _, c := range chars {
			if c == nil {
				continue
			}
			if err := client.Unsubscribe(c, false); err != nil {
				s.logger.WithError(err).Debug("ble: unsubscribe failed during disconnect")
			}
		}
		if err := client.CancelConnection(); err != nil {
			s.logger.WithError(err).Warn("ble: cancel connection failed")
		}
	}

	s.mu.Lock()
	s.client = nil
	s.eegChar, s.ppgChar, s.accChar, s.batChar = nil, nil, nil, nil
	s.mu.Unlock()

	s.setState(StateDisconnected)
	return nil
}
