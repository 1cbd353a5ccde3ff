package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferedLink() *bluetoothLink {
	return &bluetoothLink{events: make(chan Event, eventBuffer)}
}

func TestBluetoothLink_EmitDropsNotificationsWhenFull(t *testing.T) {
	l := newBufferedLink()
	for i := 0; i < eventBuffer+3; i++ {
		l.emit(Event{Kind: EventNotification, Data: []byte{byte(i)}})
	}
	assert.Len(t, l.events, eventBuffer)
	assert.Equal(t, 3, l.dropped)

	// the oldest events are the ones kept
	first := <-l.events
	assert.Equal(t, []byte{0}, first.Data)
}

func TestBluetoothLink_DisconnectDeliveredWhenFull(t *testing.T) {
	l := newBufferedLink()
	for i := 0; i < eventBuffer; i++ {
		l.emit(Event{Kind: EventNotification, Data: []byte{byte(i)}})
	}
	require.Len(t, l.events, eventBuffer)

	l.emit(Event{Kind: EventDisconnected})

	assert.Equal(t, 1, l.dropped, "one notification evicted")
	var last Event
	n := 0
	for len(l.events) > 0 {
		last = <-l.events
		n++
	}
	assert.Equal(t, eventBuffer, n)
	assert.Equal(t, EventDisconnected, last.Kind)
}

func TestBluetoothLink_EmitAfterClose(t *testing.T) {
	l := newBufferedLink()
	l.closed = true
	l.emit(Event{Kind: EventDisconnected})
	assert.Empty(t, l.events)
}
