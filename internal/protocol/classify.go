package protocol

import (
	"bytes"
	"fmt"
	"strings"
)

// FrameKind is the routing class of a notification.
type FrameKind string

const (
	FrameRadar     FrameKind = "radar"
	FrameLight     FrameKind = "light"
	FrameANTCommon FrameKind = "ant_common"
	FrameUnknown   FrameKind = "unknown"
)

// Classifier assigns a FrameKind to a raw notification.
//
// Radar frames are matched on the page A prefix 57 09 00 30 only, unless
// PageB is set. Page B frames otherwise fall through to FrameUnknown and
// stay visible in diagnostics.
type Classifier struct {
	PageB bool
}

// Classify checks, in order: radar, light, the three ANT+ common pages.
func (c Classifier) Classify(b []byte) FrameKind {
	switch {
	case bytes.HasPrefix(b, radarPageAPrefix):
		return FrameRadar
	case c.PageB && bytes.HasPrefix(b, radarPageBPrefix):
		return FrameRadar
	case bytes.HasPrefix(b, lightPrefix):
		return FrameLight
	case bytes.HasPrefix(b, antManufacturerPrefix),
		bytes.HasPrefix(b, antProductPrefix),
		bytes.HasPrefix(b, antBatteryPrefix):
		return FrameANTCommon
	default:
		return FrameUnknown
	}
}

// Classify uses the default Classifier.
func Classify(b []byte) FrameKind {
	return Classifier{}.Classify(b)
}

// Hex renders b as upper-case space separated bytes, e.g. "57 09 00 30".
func Hex(b []byte) string {
	var sb strings.Builder
	for i, v := range b {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", v)
	}
	return sb.String()
}
