package hub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/srg/lxb/internal/clock"
	"github.com/srg/lxb/internal/emit"
	"github.com/srg/lxb/internal/sample"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	h := New(Config{SendTimeout: 50 * time.Millisecond, PrioritySendTimeout: 200 * time.Millisecond, Clock: clock.NewFake(time.Now())})
	h.SetReady(true)
	return h
}

func newTestSubscriber(id int64) *Subscriber {
	return newSubscriber(id, nil)
}

func TestSubscribeIsIdempotent(t *testing.T) {
	sub := newTestSubscriber(1)
	sub.subscribe("eeg_raw")
	sub.subscribe("eeg_raw")
	require.True(t, sub.subscribed("eeg_raw"))
	require.Equal(t, 1, sub.channel.om.Len())
}

func TestUnsubscribedSubscriberReceivesNothing(t *testing.T) {
	h := newTestHub(t)
	sub := newTestSubscriber(1)
	h.register(sub)

	h.Publish("eeg_raw", emit.Frame{Type: emit.FrameTypeRaw, SensorType: sample.EEGSensor})
	time.Sleep(20 * time.Millisecond)

	select {
	case <-sub.send:
		t.Fatal("unsubscribed subscriber should not receive a frame")
	default:
	}
}

func TestSubscribedSubscriberReceivesFrame(t *testing.T) {
	h := newTestHub(t)
	sub := newTestSubscriber(1)
	sub.subscribe("eeg_raw")
	h.register(sub)

	h.Publish("eeg_raw", emit.Frame{Type: emit.FrameTypeRaw, SensorType: sample.EEGSensor, DeviceID: "dev1"})

	select {
	case data := <-sub.send:
		require.Contains(t, string(data), `"raw_data"`)
		require.Contains(t, string(data), "dev1")
	case <-time.After(time.Second):
		t.Fatal("expected a published frame")
	}
}

func TestSlowSubscriberIsRemovedAfterDeadline(t *testing.T) {
	h := newTestHub(t)
	sub := newTestSubscriber(1)
	sub.subscribe("eeg_raw")
	h.register(sub)

	// fill the send buffer so every subsequent send blocks
	for i := 0; i < sendBufferSize; i++ {
		sub.send <- []byte("x")
	}

	h.Publish("eeg_raw", emit.Frame{Type: emit.FrameTypeRaw, SensorType: sample.EEGSensor})
	require.Eventually(t, func() bool {
		return h.Count() == 0
	}, time.Second, 10*time.Millisecond, "slow subscriber should be dropped after missing its deadline")
}

func TestPriorityBroadcastTolerantOfSlowSubscriber(t *testing.T) {
	h := newTestHub(t)
	sub := newTestSubscriber(1)
	sub.subscribe(MonitoringMetricsChannel)
	h.register(sub)

	for i := 0; i < sendBufferSize; i++ {
		sub.send <- []byte("x")
	}

	h.PublishPriority(MonitoringMetricsChannel, Frame{Type: "monitoring_metrics"})
	time.Sleep(300 * time.Millisecond)
	require.Equal(t, 1, h.Count(), "priority broadcast tolerates a slow subscriber instead of removing it")
}

func TestControlMessageSubscribeUnsubscribe(t *testing.T) {
	h := newTestHub(t)
	sub := newTestSubscriber(1)
	h.register(sub)

	h.handleControlMessage(sub, []byte(`{"type":"subscribe","channel":"eeg_raw"}`))
	data := <-sub.send
	require.Contains(t, string(data), "subscription_confirmed")
	require.True(t, sub.subscribed("eeg_raw"))

	h.handleControlMessage(sub, []byte(`{"type":"unsubscribe","channel":"eeg_raw"}`))
	data = <-sub.send
	require.Contains(t, string(data), "unsubscription_confirmed")
	require.False(t, sub.subscribed("eeg_raw"))
}

func TestControlMessagePingPong(t *testing.T) {
	h := newTestHub(t)
	sub := newTestSubscriber(1)
	h.register(sub)

	h.handleControlMessage(sub, []byte(`{"type":"ping"}`))
	require.Contains(t, string(<-sub.send), "pong")

	h.handleControlMessage(sub, []byte(`{"type":"heartbeat"}`))
	require.Contains(t, string(<-sub.send), "heartbeat_response")
}

func TestControlMessageUnknownProducesErrorNotClose(t *testing.T) {
	h := newTestHub(t)
	sub := newTestSubscriber(1)
	h.register(sub)

	h.handleControlMessage(sub, []byte(`{"type":"frobnicate"}`))
	require.Contains(t, string(<-sub.send), "error")

	h.handleControlMessage(sub, []byte(`not json`))
	require.Contains(t, string(<-sub.send), "error")
}

func TestCheckDeviceConnectionWithNoProvider(t *testing.T) {
	h := newTestHub(t)
	sub := newTestSubscriber(1)
	h.register(sub)

	h.handleControlMessage(sub, []byte(`{"type":"check_device_connection"}`))
	require.Contains(t, string(<-sub.send), "device_info")
}

type fakeStatusProvider struct{ connected bool }

func (f fakeStatusProvider) DeviceConnectionStatus() map[string]interface{} {
	return map[string]interface{}{"connected": f.connected}
}

func TestCheckDeviceConnectionWithProvider(t *testing.T) {
	h := newTestHub(t)
	h.SetStatusProvider(fakeStatusProvider{connected: true})
	sub := newTestSubscriber(1)
	h.register(sub)

	h.handleControlMessage(sub, []byte(`{"type":"check_device_connection"}`))
	require.Contains(t, string(<-sub.send), `"connected":true`)
}

func TestBroadcastEventReachesAllSubscribersRegardlessOfChannel(t *testing.T) {
	h := newTestHub(t)
	subA := newTestSubscriber(1)
	subB := newTestSubscriber(2)
	subA.subscribe("eeg_raw")
	h.register(subA)
	h.register(subB)

	h.BroadcastEvent("device_disconnected", "dev1", nil)

	require.Eventually(t, func() bool {
		select {
		case data := <-subA.send:
			return len(data) > 0
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		select {
		case data := <-subB.send:
			return len(data) > 0
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}
