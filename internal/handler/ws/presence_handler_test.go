package ws

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(hub *PresenceHub, deviceID uuid.UUID) *Client {
	return &Client{
		hub:      hub,
		send:     make(chan []byte, sendBufferSize),
		deviceID: deviceID,
	}
}

func TestPushToAbsentDevice(t *testing.T) {
	hub := NewPresenceHub(nil, nil)

	delivered := hub.Push(uuid.New(), map[string]string{"type": "new_message"})
	assert.False(t, delivered)
}

func TestPushToConnectedDevice(t *testing.T) {
	hub := NewPresenceHub(nil, nil)

	deviceID := uuid.New()
	client := newTestClient(hub, deviceID)
	hub.register(client)

	delivered := hub.Push(deviceID, map[string]string{"type": "new_message"})
	assert.True(t, delivered)

	select {
	case frame := <-client.send:
		assert.Contains(t, string(frame), "new_message")
	default:
		t.Fatal("expected a frame in the client's send buffer")
	}
}

func TestPushFullBufferDropsHint(t *testing.T) {
	hub := NewPresenceHub(nil, nil)

	deviceID := uuid.New()
	client := &Client{
		hub:      hub,
		send:     make(chan []byte), // unbuffered, nothing reading
		deviceID: deviceID,
	}
	hub.register(client)

	delivered := hub.Push(deviceID, map[string]string{"type": "new_message"})
	assert.False(t, delivered)
}

func TestLastConnectWins(t *testing.T) {
	hub := NewPresenceHub(nil, nil)

	deviceID := uuid.New()
	first := newTestClient(hub, deviceID)
	second := newTestClient(hub, deviceID)

	hub.register(first)
	hub.register(second)

	// The displaced client's send channel is closed
	_, open := <-first.send
	assert.False(t, open)

	// Pushes land on the replacement
	require.True(t, hub.Push(deviceID, map[string]string{"type": "new_message"}))
	select {
	case <-second.send:
	default:
		t.Fatal("expected the push to reach the newest client")
	}

	assert.Equal(t, 1, hub.Count())
}

func TestUnregisterOnlyCurrentClient(t *testing.T) {
	hub := NewPresenceHub(nil, nil)

	deviceID := uuid.New()
	first := newTestClient(hub, deviceID)
	second := newTestClient(hub, deviceID)

	hub.register(first)
	hub.register(second)

	// The displaced client's teardown must not evict its replacement
	hub.unregister(first)
	assert.True(t, hub.IsConnected(deviceID))

	hub.unregister(second)
	assert.False(t, hub.IsConnected(deviceID))
	assert.Zero(t, hub.Count())
}

func TestUnregisterClosesSendOnce(t *testing.T) {
	hub := NewPresenceHub(nil, nil)

	deviceID := uuid.New()
	client := newTestClient(hub, deviceID)
	hub.register(client)

	hub.unregister(client)
	_, open := <-client.send
	assert.False(t, open)

	// A second unregister for the same client is a no-op
	hub.unregister(client)
}

func TestPushRacingReconnects(t *testing.T) {
	hub := NewPresenceHub(nil, nil)
	deviceID := uuid.New()
	hub.register(newTestClient(hub, deviceID))

	// Hammer pushes against a reconnect storm for the same device. A push
	// must never land on a channel a replacement has already closed.
	const iterations = 50000

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < iterations; i++ {
			hub.Push(deviceID, map[string]string{"type": "new_message"})
		}
	}()

	for i := 0; i < iterations; i++ {
		hub.register(newTestClient(hub, deviceID))
	}
	<-done

	assert.Equal(t, 1, hub.Count())
}

func TestEnqueueSkipsDisplacedClient(t *testing.T) {
	hub := NewPresenceHub(nil, nil)

	deviceID := uuid.New()
	first := newTestClient(hub, deviceID)
	hub.register(first)
	hub.register(newTestClient(hub, deviceID))

	// The displaced client is no longer the map entry; queueing on it must
	// refuse rather than write to its closed channel
	assert.False(t, hub.enqueue(first, []byte(`{"type":"pong"}`)))
}

func TestCountTracksDistinctDevices(t *testing.T) {
	hub := NewPresenceHub(nil, nil)

	a := newTestClient(hub, uuid.New())
	b := newTestClient(hub, uuid.New())
	hub.register(a)
	hub.register(b)

	assert.Equal(t, 2, hub.Count())
}
