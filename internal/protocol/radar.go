package protocol

import "math"

// RadarTarget is one tracked object on a radar page.
type RadarTarget struct {
	ID          int     `json:"id"`
	ThreatLevel int     `json:"threat_level"` // 0 none, 1 approach, 2 fast approach, 3 reserved
	ThreatSide  int     `json:"threat_side"`  // 0 none, 1 left, 2 right, 3 reserved
	Range       float64 `json:"range_m"`
	Speed       float64 `json:"speed_mps"`
}

// RadarFrame is one decoded radar page. Targets is empty for header-only
// frames and holds exactly four entries otherwise.
type RadarFrame struct {
	Page    byte          `json:"page"`
	Targets []RadarTarget `json:"targets"`
}

// RawTarget holds the undecoded bit fields of a target slot.
type RawTarget struct {
	ThreatLevel uint8 // 2 bits
	ThreatSide  uint8 // 2 bits
	Range       uint8 // 6 bits
	Speed       uint8 // 4 bits
}

// BaseTargetID returns the id of the first target on page.
func BaseTargetID(page byte) int {
	if page == PageB {
		return 5
	}
	return 1
}

func extractBits(v uint32, start, length uint) uint32 {
	return (v >> start) & (1<<length - 1)
}

// DecodeRadar decodes a radar page.
//
// Payload layout (payload = frame[4:], MSB first, target 1 in the high bits):
//
//	byte 1     threat level, 2 bits x 4
//	byte 2     threat side,  2 bits x 4
//	bytes 3-5  range, 6 bits x 4, 24-bit big endian, x RangeUnit
//	bytes 6-7  speed, 4 bits x 4, 16-bit big endian, x SpeedUnit
//
// Payloads shorter than 7 bytes are header-only keep-alives and decode to
// a frame without targets. A 7-byte payload reads the absent byte 7 as 0.
func DecodeRadar(b []byte) (RadarFrame, error) {
	if len(b) < minRadarLen {
		return RadarFrame{}, NewError(KindRadar, "error parsing radar data: malformed data (%d bytes)", len(b))
	}

	page := b[3]
	if page != PageA && page != PageB {
		return RadarFrame{}, NewError(KindRadar, "error parsing radar data: unknown page 0x%02X", page)
	}

	payload := b[minRadarLen:]
	if len(payload) < minTargetPayload {
		return RadarFrame{Page: page, Targets: []RadarTarget{}}, nil
	}

	var p [8]byte
	copy(p[:], payload)

	threat := uint32(p[1])
	side := uint32(p[2])
	rangeBits := uint32(p[3])<<16 | uint32(p[4])<<8 | uint32(p[5])
	speedBits := uint32(p[6])<<8 | uint32(p[7])

	base := BaseTargetID(page)
	targets := make([]RadarTarget, targetsPerPage)
	for i := 0; i < targetsPerPage; i++ {
		shift := uint(targetsPerPage - 1 - i)
		t := RadarTarget{
			ID:          base + i,
			ThreatLevel: int(extractBits(threat, shift*2, 2)),
			ThreatSide:  int(extractBits(side, shift*2, 2)),
		}
		// a cleared slot keeps stale range/speed bits
		if t.ThreatLevel != 0 {
			t.Range = float64(extractBits(rangeBits, shift*6, 6)) * RangeUnit
			t.Speed = float64(extractBits(speedBits, shift*4, 4)) * SpeedUnit
		}
		targets[i] = t
	}

	return RadarFrame{Page: page, Targets: targets}, nil
}

// EncodeRadar packs up to four raw targets into a full radar frame for page.
// Fields wider than their bit width are truncated. Missing targets encode as
// empty slots.
func EncodeRadar(page byte, targets []RawTarget) []byte {
	var threat, side uint8
	var rangeBits uint32
	var speedBits uint16
	for i := 0; i < targetsPerPage && i < len(targets); i++ {
		shift := uint(targetsPerPage - 1 - i)
		t := targets[i]
		threat |= (t.ThreatLevel & 0x3) << (shift * 2)
		side |= (t.ThreatSide & 0x3) << (shift * 2)
		rangeBits |= uint32(t.Range&0x3F) << (shift * 6)
		speedBits |= uint16(t.Speed&0xF) << (shift * 4)
	}

	return []byte{
		0x57, 0x09, 0x00, page,
		0x00,
		threat,
		side,
		byte(rangeBits >> 16), byte(rangeBits >> 8), byte(rangeBits),
		byte(speedBits >> 8), byte(speedBits),
	}
}

// RawFromTarget converts a decoded target back into raw fields, rounding
// range and speed to the nearest step.
func RawFromTarget(t RadarTarget) RawTarget {
	return RawTarget{
		ThreatLevel: uint8(t.ThreatLevel),
		ThreatSide:  uint8(t.ThreatSide),
		Range:       uint8(math.Round(t.Range / RangeUnit)),
		Speed:       uint8(math.Round(t.Speed / SpeedUnit)),
	}
}
