package hub

import (
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// sendBufferSize is the subscriber's outbound queue depth.
const sendBufferSize = 64

// Subscriber is one connected consumer of the Hub's broadcast, wrapping
// a *websocket.Conn with a buffered send channel and a writePump
// goroutine.
type Subscriber struct {
	id   int64
	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	mu      sync.Mutex
	channel *subscriptionSet
	closed  bool
}

func newSubscriber(id int64, conn *websocket.Conn) *Subscriber {
	return &Subscriber{
		id:      id,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		done:    make(chan struct{}),
		channel: newSubscriptionSet(),
	}
}

func (s *Subscriber) key() string { return strconv.FormatInt(s.id, 10) }

// subscribe adds channel to the subscriber's set. Idempotent:
// subscribing twice yields one effective subscription.
func (s *Subscriber) subscribe(channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channel.om.Set(channel, struct{}{})
}

func (s *Subscriber) unsubscribe(channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channel.om.Delete(channel)
}

func (s *Subscriber) subscribed(channel string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.channel.om.Get(channel)
	return ok
}

// enqueue is a non-blocking best-effort send used for control replies
// and the admission handshake; a full buffer silently drops the reply
// (the client will simply not see it and can retry), never blocking
// the Hub's goroutine.
func (s *Subscriber) enqueue(data []byte) {
	select {
	case s.send <- data:
	case <-s.done:
	default:
	}
}

// sendWithDeadline enqueues data, waiting up to timeout for room in the
// send buffer. It reports whether the send succeeded within the
// deadline. A closed subscriber always reports failure: broadcast
// goroutines may still hold it in a snapshot taken before removal.
func (s *Subscriber) sendWithDeadline(data []byte, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case s.send <- data:
		return true
	case <-s.done:
		return false
	case <-timer.C:
		return false
	}
}

// writePump drains send and writes each message to the websocket
// connection until the subscriber closes or a write fails.
func (s *Subscriber) writePump(logger *logrus.Logger) {
	defer s.conn.Close()
	for {
		select {
		case data := <-s.send:
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.WithError(err).Debug("hub: subscriber write failed")
				return
			}
		case <-s.done:
			return
		}
	}
}

// closeWithCode sends a websocket close frame with code/reason before
// tearing the subscriber down.
func (s *Subscriber) closeWithCode(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	s.close()
}

// close signals the subscriber's done channel exactly once, stopping
// writePump and failing any in-flight sendWithDeadline. The send channel
// itself is never closed: broadcast goroutines holding a pre-removal
// snapshot may still attempt sends against it.
func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}
