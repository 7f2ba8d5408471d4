// Package hub is the subscriber broadcaster: it keeps a
// set of subscribers, each with its own channel subscriptions, and fans
// frames out with a per-send timeout so a slow or gone subscriber can
// never stall the emitters that call Publish.
package hub

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/lxb/internal/clock"
	"github.com/srg/lxb/internal/emit"
)

// MonitoringMetricsChannel is the one channel broadcast with the 5 s
// priority deadline instead of the normal 1 s one.
const MonitoringMetricsChannel = "monitoring_metrics"

// Well-known monitoring channel names.
const (
	ChannelHealthUpdates = "health_updates"
	ChannelBufferStatus  = "buffer_status"
	ChannelSystemAlerts  = "system_alerts"
	ChannelBatchStatus   = "batch_status"
)

// StatusProvider answers the "check_device_connection" control
// message. The Supervisor implements and registers this.
type StatusProvider interface {
	DeviceConnectionStatus() map[string]interface{}
}

// Config configures a Hub.
type Config struct {
	Logger              *logrus.Logger
	Clock               clock.Clock
	SendTimeout         time.Duration // default 1s
	PrioritySendTimeout time.Duration // default 5s

	// ReadyTimeout/ReadyPollInterval govern the admission handshake: a
	// subscriber connecting
	// before the rest of the system is ready sees repeated
	// server_status:initializing frames, then either ready or a 1011
	// close.
	ReadyTimeout      time.Duration // default 10s
	ReadyPollInterval time.Duration // default 2s
}

func (c *Config) setDefaults() {
	if c.SendTimeout <= 0 {
		c.SendTimeout = time.Second
	}
	if c.PrioritySendTimeout <= 0 {
		c.PrioritySendTimeout = 5 * time.Second
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = 10 * time.Second
	}
	if c.ReadyPollInterval <= 0 {
		c.ReadyPollInterval = 2 * time.Second
	}
	if c.Clock == nil {
		c.Clock = clock.System{}
	}
	if c.Logger == nil {
		c.Logger = logrus.New()
	}
}

// Hub fans frames out to subscribers.
type Hub struct {
	cfg Config

	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	nextID      int64

	readyMu sync.Mutex
	ready   bool

	statusMu sync.Mutex
	status   StatusProvider
}

// New creates a Hub. It starts "not ready"; call SetReady(true) once the
// rest of the streaming engine (BLE session, emitters, monitor) has
// started.
func New(cfg Config) *Hub {
	cfg.setDefaults()
	return &Hub{cfg: cfg, subscribers: make(map[string]*Subscriber)}
}

// SetReady flips the admission-handshake gate.
func (h *Hub) SetReady(ready bool) {
	h.readyMu.Lock()
	h.ready = ready
	h.readyMu.Unlock()
}

func (h *Hub) isReady() bool {
	h.readyMu.Lock()
	defer h.readyMu.Unlock()
	return h.ready
}

// SetStatusProvider registers the callback used to answer
// "check_device_connection" control messages.
func (h *Hub) SetStatusProvider(p StatusProvider) {
	h.statusMu.Lock()
	h.status = p
	h.statusMu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 65536,
}

// ServeHTTP upgrades an incoming HTTP request to a websocket connection
// and runs it as a subscriber until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.cfg.Logger.WithError(err).Warn("hub: websocket upgrade failed")
		return
	}
	h.Accept(conn)
}

// Accept registers conn as a new Subscriber and blocks until it
// disconnects (driving the admission handshake, then the read pump).
func (h *Hub) Accept(conn *websocket.Conn) {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.mu.Unlock()

	sub := newSubscriber(id, conn)
	h.register(sub)

	go sub.writePump(h.cfg.Logger)

	if !h.admit(sub) {
		h.remove(sub, "admission timed out")
		return
	}

	h.readLoop(sub)
	h.remove(sub, "connection closed")
}

func (h *Hub) register(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers[sub.key()] = sub
}

// admit runs the "server_status" greeting handshake: while the Hub isn't
// ready, it sends "initializing" every ReadyPollInterval up to
// ReadyTimeout, then either proceeds (ready) or closes with 1011.
func (h *Hub) admit(sub *Subscriber) bool {
	deadline := h.cfg.Clock.Now().Add(h.cfg.ReadyTimeout)
	for {
		if h.isReady() {
			sub.enqueue(mustJSON(serverStatusFrame("ready")))
			return true
		}
		if h.cfg.Clock.Now().After(deadline) {
			sub.enqueue(mustJSON(serverStatusFrame("initializing")))
			sub.closeWithCode(websocket.CloseInternalServerErr, "system not ready")
			return false
		}
		sub.enqueue(mustJSON(serverStatusFrame("initializing")))
		time.Sleep(h.cfg.ReadyPollInterval)
	}
}

func serverStatusFrame(status string) Frame {
	return Frame{Type: "server_status", Data: status}
}

// readLoop parses inbound control messages until the connection closes.
func (h *Hub) readLoop(sub *Subscriber) {
	for {
		_, data, err := sub.conn.ReadMessage()
		if err != nil {
			return
		}
		h.handleControlMessage(sub, data)
	}
}

// controlMessage is the subscriber->server wire shape.
type controlMessage struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
}

func (h *Hub) handleControlMessage(sub *Subscriber, raw []byte) {
	var msg controlMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		sub.enqueue(mustJSON(Frame{Type: "error", Data: "malformed message"}))
		return
	}

	switch msg.Type {
	case "subscribe":
		sub.subscribe(msg.Channel)
		sub.enqueue(mustJSON(Frame{Type: "subscription_confirmed", Channel: msg.Channel}))
	case "unsubscribe":
		sub.unsubscribe(msg.Channel)
		sub.enqueue(mustJSON(Frame{Type: "unsubscription_confirmed", Channel: msg.Channel}))
	case "ping":
		sub.enqueue(mustJSON(Frame{Type: "pong"}))
	case "heartbeat":
		sub.enqueue(mustJSON(Frame{Type: "heartbeat_response"}))
	case "check_device_connection":
		sub.enqueue(mustJSON(h.deviceStatusFrame()))
	default:
		sub.enqueue(mustJSON(Frame{Type: "error", Data: "unknown message type: " + msg.Type}))
	}
}

func (h *Hub) deviceStatusFrame() Frame {
	h.statusMu.Lock()
	provider := h.status
	h.statusMu.Unlock()

	if provider == nil {
		return Frame{Type: "event", EventType: "device_info", Data: map[string]interface{}{"connected": false}}
	}
	return Frame{Type: "event", EventType: "device_info", Data: provider.DeviceConnectionStatus()}
}

func mustJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte(`{"type":"error","data":"internal encode failure"}`)
	}
	return data
}

func (h *Hub) remove(sub *Subscriber, reason string) {
	h.mu.Lock()
	_, ok := h.subscribers[sub.key()]
	delete(h.subscribers, sub.key())
	h.mu.Unlock()
	if ok {
		sub.close()
		h.cfg.Logger.WithField("reason", reason).Debug("hub: subscriber removed")
	}
}

// snapshot returns every currently registered subscriber subscribed to
// channel, taken under a read lock before each broadcast.
func (h *Hub) snapshot(channel string) []*Subscriber {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Subscriber, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		if sub.subscribed(channel) {
			out = append(out, sub)
		}
	}
	return out
}

// Publish implements emit.Hub: it fans frame out to channel's
// subscribers with the normal 1 s per-send deadline, dropping any
// subscriber that misses it. It returns immediately (the actual sends
// happen on a background goroutine) so it can never block the calling
// emitter.
func (h *Hub) Publish(channel string, frame emit.Frame) {
	h.broadcast(channel, frame, h.cfg.SendTimeout, false)
}

// PublishPriority fans frame out with the 5 s priority deadline,
// tolerating (not removing) a subscriber that misses it; used for
// monitoring_metrics.
func (h *Hub) PublishPriority(channel string, frame Frame) {
	h.broadcastFrame(channel, frame, h.cfg.PrioritySendTimeout, true)
}

// BroadcastEvent sends an event frame to every subscriber regardless of
// channel subscription: device connect/disconnect and similar lifecycle
// events are global state, not a sensor-stream concern.
func (h *Hub) BroadcastEvent(eventType string, deviceID string, data interface{}) {
	frame := Frame{Type: "event", EventType: eventType, DeviceID: deviceID, Data: data}
	encoded := mustJSON(frame)

	h.mu.RLock()
	subs := make([]*Subscriber, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	go h.sendAll(subs, encoded, h.cfg.SendTimeout, false)
}

func (h *Hub) broadcast(channel string, emitFrame emit.Frame, timeout time.Duration, priority bool) {
	h.broadcastFrame(channel, Frame{
		Type:       emitFrame.Type,
		SensorType: string(emitFrame.SensorType),
		DeviceID:   emitFrame.DeviceID,
		Timestamp:  emitFrame.Timestamp,
		Data:       emitFrame.Data,
	}, timeout, priority)
}

func (h *Hub) broadcastFrame(channel string, frame Frame, timeout time.Duration, priority bool) {
	subs := h.snapshot(channel)
	if len(subs) == 0 {
		return
	}
	encoded := mustJSON(frame)
	go h.sendAll(subs, encoded, timeout, priority)
}

func (h *Hub) sendAll(subs []*Subscriber, data []byte, timeout time.Duration, priority bool) {
	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(s *Subscriber) {
			defer wg.Done()
			if !s.sendWithDeadline(data, timeout) && !priority {
				h.remove(s, "send deadline exceeded")
			}
		}(sub)
	}
	wg.Wait()
}

// Count returns the number of currently connected subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Frame is the server->subscriber wire shape: a superset of
// emit.Frame covering data frames, events, and control replies.
type Frame struct {
	Type       string      `json:"type"`
	Channel    string      `json:"channel,omitempty"`
	SensorType string      `json:"sensor_type,omitempty"`
	DeviceID   string      `json:"device_id,omitempty"`
	Timestamp  float64     `json:"timestamp,omitempty"`
	EventType  string      `json:"event_type,omitempty"`
	Data       interface{} `json:"data,omitempty"`
}

// subscriptionSet is the ordered per-subscriber set of subscribed
// channel names. Deterministic iteration order keeps subscription-set
// behavior reproducible in tests.
type subscriptionSet struct {
	om *orderedmap.OrderedMap[string, struct{}]
}

func newSubscriptionSet() *subscriptionSet {
	return &subscriptionSet{om: orderedmap.New[string, struct{}]()}
}
