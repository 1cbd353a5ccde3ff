package l508

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/l508/internal/protocol"
	"github.com/banshee-data/l508/internal/transport"
)

type recordedFrame struct {
	kind  protocol.FrameKind
	frame string
}

type fakeRecorder struct {
	mu     sync.Mutex
	frames []recordedFrame
}

func (r *fakeRecorder) Record(kind protocol.FrameKind, frame []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, recordedFrame{kind, protocol.Hex(frame)})
}

func TestDispatcher_RadarExample(t *testing.T) {
	store := NewStore()
	d := NewDispatcher(store, DispatcherOptions{})

	d.Route(radarExample)

	snap := store.Snapshot()
	require.True(t, snap.Radar.OK())
	want := protocol.RadarFrame{
		Page: protocol.PageA,
		Targets: []protocol.RadarTarget{
			{ID: 1, ThreatLevel: 1, ThreatSide: 1, Range: 2 * protocol.RangeUnit},
			{ID: 2},
			{ID: 3},
			{ID: 4},
		},
	}
	if diff := cmp.Diff(want, snap.Radar.Data); diff != "" {
		t.Errorf("radar mismatch (-want +got):\n%s", diff)
	}
	assert.Nil(t, snap.Light, "light slot must stay absent")
}

func TestDispatcher_LightExample(t *testing.T) {
	store := NewStore()
	d := NewDispatcher(store, DispatcherOptions{})

	d.Route(lightPeloton)

	snap := store.Snapshot()
	require.True(t, snap.Light.OK())
	assert.Equal(t, protocol.LightState{Mode: protocol.ModePeloton, ModeValue: 3}, snap.Light.Data)
	assert.Nil(t, snap.Radar)
}

func TestDispatcher_DecodeErrorsAreIndependent(t *testing.T) {
	store := NewStore()
	d := NewDispatcher(store, DispatcherOptions{})

	d.Route(radarExample)
	d.Route([]byte{0x57, 0x0A, 0x00, 0x07, 0x00, 0x00})

	snap := store.Snapshot()
	require.NotNil(t, snap.Light)
	assert.ErrorIs(t, snap.Light.Err, protocol.ErrLight)
	assert.True(t, snap.Radar.OK(), "a light error must not clear the radar slot")

	d.Route(lightPeloton)
	d.Route([]byte{0x57, 0x0A})
	snap = store.Snapshot()
	assert.False(t, snap.Light.OK())
	assert.True(t, snap.Radar.OK())
}

func TestDispatcher_Routing(t *testing.T) {
	tests := []struct {
		name             string
		pageB            bool
		frame            []byte
		wantRadar        bool
		wantUnrecognized int
	}{
		{name: "ant manufacturer page", frame: []byte{0x57, 0x09, 0x00, 0x50, 0x01}},
		{name: "ant product page", frame: []byte{0x57, 0x09, 0x00, 0x51}},
		{name: "ant battery page", frame: []byte{0x57, 0x09, 0x00, 0x52, 0x64}},
		{name: "ant prefix too short", frame: []byte{0x57, 0x09, 0x00}, wantUnrecognized: 1},
		{name: "unknown ant page", frame: []byte{0x57, 0x09, 0x00, 0x53}, wantUnrecognized: 1},
		{name: "empty frame", frame: []byte{}, wantUnrecognized: 1},
		{name: "page b by default", frame: []byte{0x57, 0x09, 0x00, 0x31}, wantUnrecognized: 1},
		{name: "page b opted in", pageB: true, frame: []byte{0x57, 0x09, 0x00, 0x31}, wantRadar: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewStore()
			d := NewDispatcher(store, DispatcherOptions{PageB: tt.pageB})

			d.Route(tt.frame)

			snap := store.Snapshot()
			assert.Equal(t, tt.wantRadar, snap.Radar != nil)
			assert.Nil(t, snap.Light)
			assert.Equal(t, tt.wantUnrecognized, snap.Unrecognized)
			if tt.wantUnrecognized > 0 {
				assert.Equal(t, protocol.Hex(tt.frame), snap.LastUnrecognized)
			}
		})
	}
}

func TestDispatcher_PageBHeaderOnly(t *testing.T) {
	store := NewStore()
	d := NewDispatcher(store, DispatcherOptions{PageB: true})

	d.Route([]byte{0x57, 0x09, 0x00, 0x31})

	snap := store.Snapshot()
	require.True(t, snap.Radar.OK())
	assert.Equal(t, byte(protocol.PageB), snap.Radar.Data.Page)
	assert.Empty(t, snap.Radar.Data.Targets)
}

func TestDispatcher_Recorder(t *testing.T) {
	rec := &fakeRecorder{}
	d := NewDispatcher(NewStore(), DispatcherOptions{Recorder: rec})

	d.Route(radarExample)
	d.Route(lightPeloton)
	d.Route([]byte{0xFF})

	want := []recordedFrame{
		{protocol.FrameRadar, protocol.Hex(radarExample)},
		{protocol.FrameLight, "57 0A 00 03 00 00"},
		{protocol.FrameUnknown, "FF"},
	}
	if diff := cmp.Diff(want, rec.frames, cmp.AllowUnexported(recordedFrame{})); diff != "" {
		t.Errorf("recorded frames mismatch (-want +got):\n%s", diff)
	}
}

func TestDispatcher_Battery(t *testing.T) {
	store := NewStore()
	d := NewDispatcher(store, DispatcherOptions{})
	battery := func(level byte) {
		d.Handle(transport.Event{
			Kind:           transport.EventNotification,
			Characteristic: protocol.BatteryLevelCharacteristic,
			Data:           []byte{level},
		})
	}

	// Not connected yet.
	battery(50)
	assert.Nil(t, store.Snapshot().Stats)

	store.setStatus(StatusConnected)
	battery(50)
	assert.Nil(t, store.Snapshot().Stats, "no stats result to update")

	store.update(func(snap *Snapshot) {
		snap.Stats = failure[DeviceStats](protocol.NewError(protocol.KindConnection, "boom"))
	}, nil)
	battery(50)
	assert.False(t, store.Snapshot().Stats.OK(), "failed stats must not be replaced")

	store.connected(DeviceStats{Name: "L508", BatteryLevel: 87, FirmwareVersion: "1.0.6"}, nil)
	battery(42)
	assert.Equal(t, DeviceStats{Name: "L508", BatteryLevel: 42, FirmwareVersion: "1.0.6"}, store.Snapshot().Stats.Data)

	battery(100)
	assert.Equal(t, 100, store.Snapshot().Stats.Data.BatteryLevel)
	for _, level := range []byte{101, 200, 255} {
		battery(level)
		assert.Equal(t, 100, store.Snapshot().Stats.Data.BatteryLevel, "level %d out of range", level)
	}

	d.Handle(transport.Event{Kind: transport.EventNotification, Characteristic: protocol.BatteryLevelCharacteristic})
	assert.Equal(t, 100, store.Snapshot().Stats.Data.BatteryLevel, "empty value ignored")

	assert.Nil(t, store.Snapshot().Radar, "battery must not reach the radar decoder")
}

func TestDispatcher_HandleIgnoresDisconnect(t *testing.T) {
	store := NewStore()
	d := NewDispatcher(store, DispatcherOptions{})
	d.Handle(transport.Event{Kind: transport.EventDisconnected})
	assert.Equal(t, 0, store.Snapshot().Unrecognized)
}

func TestStore_SubscribeUnsubscribe(t *testing.T) {
	store := NewStore()
	id, updates := store.Subscribe()

	store.setRadar(success(protocol.RadarFrame{Page: protocol.PageA, Targets: []protocol.RadarTarget{}}))
	u := <-updates
	assert.True(t, u.Snapshot.Radar.OK())
	assert.Nil(t, u.Notice)

	store.reset(&Notice{Kind: NoticeLost})
	u = <-updates
	require.NotNil(t, u.Notice)
	assert.Equal(t, NoticeLost, u.Notice.Kind)
	assert.Nil(t, u.Snapshot.Radar)

	store.Unsubscribe(id)
	_, ok := <-updates
	assert.False(t, ok, "channel closed after unsubscribe")
	store.Unsubscribe(id)
}

func TestStore_SlowSubscriberDoesNotBlock(t *testing.T) {
	store := NewStore()
	_, updates := store.Subscribe()

	for i := 0; i < subscriberBuffer*2; i++ {
		store.noteUnrecognized("FF")
	}
	assert.Len(t, updates, subscriberBuffer)
	assert.Equal(t, subscriberBuffer*2, store.Snapshot().Unrecognized)
}
