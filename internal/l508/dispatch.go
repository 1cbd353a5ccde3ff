package l508

import (
	"strings"

	"github.com/banshee-data/l508/internal/monitoring"
	"github.com/banshee-data/l508/internal/protocol"
	"github.com/banshee-data/l508/internal/transport"
)

const maxBatteryLevel = 100

// FrameRecorder receives a copy of every routed notification. Record must
// not block; implementations drop frames they cannot keep up with.
type FrameRecorder interface {
	Record(kind protocol.FrameKind, frame []byte)
}

// Dispatcher routes inbound notifications to the decoder and stores the
// results. It never fails: decode errors become error Results and
// unrecognized frames are counted.
type Dispatcher struct {
	store      *Store
	classifier protocol.Classifier
	recorder   FrameRecorder
	unknownLog *monitoring.Limited
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	// PageB routes 57 09 00 31 frames to the radar decoder.
	PageB bool
	// Recorder is optional.
	Recorder FrameRecorder
	// UnknownLogRate caps unrecognized-frame log lines per second. Zero
	// disables the cap.
	UnknownLogRate float64
}

// NewDispatcher returns a Dispatcher writing into store.
func NewDispatcher(store *Store, opts DispatcherOptions) *Dispatcher {
	return &Dispatcher{
		store:      store,
		classifier: protocol.Classifier{PageB: opts.PageB},
		recorder:   opts.Recorder,
		unknownLog: monitoring.NewLimited(opts.UnknownLogRate, 5),
	}
}

// Handle routes one transport notification. Battery level changes update
// the stats; everything else goes through Route.
func (d *Dispatcher) Handle(ev transport.Event) {
	if ev.Kind != transport.EventNotification {
		return
	}
	if strings.EqualFold(ev.Characteristic, protocol.BatteryLevelCharacteristic) {
		d.Battery(ev.Data)
		return
	}
	d.Route(ev.Data)
}

// Battery applies a battery level notification. It is ignored when empty
// or above 100, when the session is not connected, or when no successful
// stats exist.
func (d *Dispatcher) Battery(data []byte) {
	if len(data) == 0 || data[0] > maxBatteryLevel {
		return
	}
	d.store.setBattery(int(data[0]))
}

// Route classifies a radar/light characteristic value and updates the
// matching slot. Radar and light slots are independent: a failure in one
// never clears the other.
func (d *Dispatcher) Route(frame []byte) {
	kind := d.classifier.Classify(frame)
	if d.recorder != nil {
		d.recorder.Record(kind, frame)
	}

	switch kind {
	case protocol.FrameRadar:
		radar, err := protocol.DecodeRadar(frame)
		if err != nil {
			d.store.setRadar(failure[protocol.RadarFrame](protocol.Wrap(protocol.KindRadar, "error parsing radar data", err)))
			return
		}
		d.store.setRadar(success(radar))

	case protocol.FrameLight:
		light, err := protocol.DecodeLight(frame)
		if err != nil {
			d.store.setLight(failure[protocol.LightState](protocol.Wrap(protocol.KindLight, "error parsing light data", err)))
			return
		}
		d.store.setLight(success(light))

	case protocol.FrameANTCommon:
		// ANT+ common pages 80-82 duplicate the device info service.

	default:
		h := protocol.Hex(frame)
		d.store.noteUnrecognized(h)
		d.unknownLog.Logf("l508: unrecognized notification (%d bytes): %s", len(frame), h)
	}
}
