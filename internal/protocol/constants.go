// Package protocol decodes the Magene L508 GATT notification stream.
//
// The radar/light characteristic multiplexes two record types, told apart
// by a magic prefix:
//
//	radar: 57 09 00 <page> <payload...>   page 0x30 (targets 1-4) or 0x31 (5-8)
//	light: 57 0A <?> <mode> ...           mode 0x00-0x06, at least 6 bytes
//
// Everything in this package is pure: no I/O and no state.
package protocol

// GATT services and characteristics exposed by the L508.
const (
	DeviceInfoService    = "0000180a-0000-1000-8000-00805f9b34fb"
	BatteryService       = "0000180f-0000-1000-8000-00805f9b34fb"
	GenericAccessService = "00001800-0000-1000-8000-00805f9b34fb"
	RadarLightService    = "8ce5cc01-0a4d-11e9-ab14-d663bd873d93"

	DeviceNameCharacteristic      = "00002a00-0000-1000-8000-00805f9b34fb"
	FirmwareVersionCharacteristic = "00002a26-0000-1000-8000-00805f9b34fb"
	ManufacturerCharacteristic    = "00002a29-0000-1000-8000-00805f9b34fb"
	ModelCharacteristic           = "00002a24-0000-1000-8000-00805f9b34fb"
	BatteryLevelCharacteristic    = "00002a19-0000-1000-8000-00805f9b34fb"
	RadarLightCharacteristic      = "8ce5cc02-0a4d-11e9-ab14-d663bd873d93"
)

// Identity values reported by a genuine L508.
const (
	ExpectedManufacturer = "Qingdao Magene Intelligence Technology Co., Ltd"
	ExpectedModel        = "320"
)

// Radar pages.
const (
	PageA byte = 0x30
	PageB byte = 0x31
)

// Unit scale for raw radar fields.
const (
	RangeUnit = 3.125 // meters per raw step
	SpeedUnit = 3.04  // m/s per raw step
)

const (
	minLightLen = 6
	minRadarLen = 4
	// payload bytes after the 4-byte header needed for a full target page
	minTargetPayload = 7
	targetsPerPage   = 4
)

// Magic byte sequences. Returned as fresh slices so callers cannot mutate
// the package copies.
var (
	lightPrefix = []byte{0x57, 0x0A}

	radarPageAPrefix = []byte{0x57, 0x09, 0x00, 0x30}
	radarPageBPrefix = []byte{0x57, 0x09, 0x00, 0x31}

	// ANT+ common pages 80, 81 and 82.
	antManufacturerPrefix = []byte{0x57, 0x09, 0x00, 0x50}
	antProductPrefix      = []byte{0x57, 0x09, 0x00, 0x51}
	antBatteryPrefix      = []byte{0x57, 0x09, 0x00, 0x52}

	lightInitCommand = []byte{0x57, 0x0A, 0x00}
	radarInitCommand = []byte{0x57, 0x09, 0x01}
	nextModeCommand  = []byte{0x57, 0x0A, 0x01}
)

// LightInitCommand is the first write of the arm sequence.
func LightInitCommand() []byte { return clone(lightInitCommand) }

// RadarInitCommand is the second write of the arm sequence.
func RadarInitCommand() []byte { return clone(radarInitCommand) }

// NextModeCommand advances the light to its next mode.
func NextModeCommand() []byte { return clone(nextModeCommand) }

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
