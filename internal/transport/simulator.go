package transport

import (
	"bytes"
	"sync"
	"time"

	"github.com/banshee-data/l508/internal/protocol"
)

// TimedFrame is a notification replayed at Offset from the start of the
// stream.
type TimedFrame struct {
	Offset time.Duration
	Data   []byte
}

// Synthetic vehicle track, in meters and m/s.
const (
	simStartRange = 63 * protocol.RangeUnit
	simFastRange  = 20 * protocol.RangeUnit
	simStep       = 3 * protocol.RangeUnit
	simSpeed      = 4 * protocol.SpeedUnit
)

// SimulatorOptions configures a Simulator.
type SimulatorOptions struct {
	Name     string
	Firmware string
	Battery  byte
	// Frames replays a recorded stream instead of synthetic radar pages.
	Frames []TimedFrame
	// Interval between synthetic radar pages. Defaults to 200ms.
	Interval time.Duration
}

// Simulator emulates an L508 on top of a MockLink. It answers the arm
// sequence by starting a radar stream and the next-mode command with a
// light record.
type Simulator struct {
	link *MockLink
	opts SimulatorOptions

	mu        sync.Mutex
	mode      int
	streaming bool
}

// NewSimulator returns a simulated device preloaded with a genuine identity.
func NewSimulator(opts SimulatorOptions) *Simulator {
	if opts.Name == "" {
		opts.Name = "L508"
	}
	if opts.Firmware == "" {
		opts.Firmware = "1.0.6"
	}
	if opts.Battery == 0 {
		opts.Battery = 87
	}
	if opts.Interval <= 0 {
		opts.Interval = 200 * time.Millisecond
	}

	link := NewMockLink()
	link.SetValue(protocol.DeviceInfoService, protocol.ManufacturerCharacteristic, []byte(protocol.ExpectedManufacturer))
	link.SetValue(protocol.DeviceInfoService, protocol.ModelCharacteristic, []byte(protocol.ExpectedModel+" "))
	link.SetValue(protocol.DeviceInfoService, protocol.FirmwareVersionCharacteristic, []byte(opts.Firmware))
	link.SetValue(protocol.GenericAccessService, protocol.DeviceNameCharacteristic, []byte(opts.Name))
	link.SetValue(protocol.BatteryService, protocol.BatteryLevelCharacteristic, []byte{opts.Battery})
	link.SetValue(protocol.RadarLightService, protocol.RadarLightCharacteristic, nil)

	s := &Simulator{link: link, opts: opts}
	link.OnWrite = s.handleWrite
	return s
}

// Transport returns a MockTransport that discovers the simulated device.
func (s *Simulator) Transport() *MockTransport {
	return NewMockTransport(&MockDevice{
		DeviceAddress: "SIM:L5:08:00:00:01",
		DeviceName:    s.opts.Name,
		Link:          s.link,
	})
}

// Link exposes the underlying MockLink.
func (s *Simulator) Link() *MockLink { return s.link }

func (s *Simulator) handleWrite(key string, data []byte) {
	if key != Key(protocol.RadarLightService, protocol.RadarLightCharacteristic) {
		return
	}
	switch {
	case bytes.Equal(data, protocol.LightInitCommand()):
		s.notifyLight()
	case bytes.Equal(data, protocol.NextModeCommand()):
		s.mu.Lock()
		s.mode = (s.mode + 1) % 7
		s.mu.Unlock()
		s.notifyLight()
	case bytes.Equal(data, protocol.RadarInitCommand()):
		s.mu.Lock()
		start := !s.streaming
		s.streaming = true
		s.mu.Unlock()
		if start {
			go s.stream()
		}
	}
}

func (s *Simulator) notifyLight() {
	s.mu.Lock()
	mode := byte(s.mode)
	s.mu.Unlock()
	s.link.Notify(protocol.RadarLightCharacteristic, []byte{0x57, 0x0A, 0x00, mode, 0x00, 0x00})
}

func (s *Simulator) stream() {
	defer func() {
		s.mu.Lock()
		s.streaming = false
		s.mu.Unlock()
	}()
	if len(s.opts.Frames) > 0 {
		s.replay()
		return
	}
	s.synthesize()
}

func (s *Simulator) replay() {
	start := time.Now()
	for _, f := range s.opts.Frames {
		if wait := f.Offset - time.Since(start); wait > 0 {
			time.Sleep(wait)
		}
		if s.link.IsClosed() {
			return
		}
		s.link.Notify(protocol.RadarLightCharacteristic, f.Data)
	}
}

// synthesize sends one vehicle approaching on the left from the edge of
// radar range, alternating page A frames with header-only page B
// keep-alives.
func (s *Simulator) synthesize() {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	vehicle := protocol.RadarTarget{ID: 1, ThreatSide: 1, Range: simStartRange, Speed: simSpeed}
	battery := s.opts.Battery
	for tick := 0; ; tick++ {
		<-ticker.C
		if s.link.IsClosed() {
			return
		}

		if tick%2 == 1 {
			s.link.Notify(protocol.RadarLightCharacteristic, []byte{0x57, 0x09, 0x00, protocol.PageB})
			continue
		}

		vehicle.ThreatLevel = 1
		if vehicle.Range < simFastRange {
			vehicle.ThreatLevel = 2
		}
		s.link.Notify(protocol.RadarLightCharacteristic,
			protocol.EncodeRadar(protocol.PageA, []protocol.RawTarget{protocol.RawFromTarget(vehicle)}))
		vehicle.Range -= simStep
		if vehicle.Range < 0 {
			vehicle.Range = simStartRange
		}

		if tick > 0 && tick%300 == 0 && battery > 1 {
			battery--
			s.link.Notify(protocol.BatteryLevelCharacteristic, []byte{battery})
		}
	}
}
