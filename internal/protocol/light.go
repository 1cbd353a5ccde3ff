package protocol

import "bytes"

// LightMode names one of the seven light modes.
type LightMode string

const (
	ModeSolid      LightMode = "Solid"
	ModeFlashing   LightMode = "Flashing"
	ModePulse      LightMode = "Pulse"
	ModePeloton    LightMode = "Peloton"
	ModeRotation   LightMode = "Rotation"
	ModeQuickFlash LightMode = "Quick Flash"
	ModeRadarOnly  LightMode = "Radar only"
)

// lightModes is indexed by the mode byte.
var lightModes = [...]LightMode{
	ModeSolid,
	ModeFlashing,
	ModePulse,
	ModePeloton,
	ModeRotation,
	ModeQuickFlash,
	ModeRadarOnly,
}

// LightState is the decoded light record.
type LightState struct {
	Mode      LightMode `json:"mode"`
	ModeValue int       `json:"mode_value"`
}

// ModeFor returns the named mode for a raw mode value.
func ModeFor(value int) (LightMode, bool) {
	if value < 0 || value >= len(lightModes) {
		return "", false
	}
	return lightModes[value], true
}

// DecodeLight decodes a light record. The frame must be at least 6 bytes,
// start with 57 0A and carry a known mode value at offset 3.
func DecodeLight(b []byte) (LightState, error) {
	if len(b) < minLightLen || !bytes.HasPrefix(b, lightPrefix) {
		return LightState{}, NewError(KindLight, "error parsing light data: incorrect format or identifier")
	}

	value := int(b[3])
	mode, ok := ModeFor(value)
	if !ok {
		return LightState{}, NewError(KindLight, "error parsing light data: unknown mode 0x%02X", value)
	}
	return LightState{Mode: mode, ModeValue: value}, nil
}
