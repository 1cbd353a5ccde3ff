package l508

import (
	"context"
	"time"

	"github.com/banshee-data/l508/internal/protocol"
	"github.com/banshee-data/l508/internal/timeutil"
)

// DefaultSettleDelay is the pause between the light and radar init writes.
// The device ignores the radar init if it arrives sooner.
const DefaultSettleDelay = 500 * time.Millisecond

// arm sends the light init command, waits settle, then sends the radar
// init command. The radar/light characteristic must already be subscribed
// or the device's replies are lost.
func (s *session) arm(ctx context.Context, clock timeutil.Clock, settle time.Duration) error {
	if !s.isSubscribed(protocol.RadarLightCharacteristic) {
		return protocol.NewError(protocol.KindConnection, "could not access characteristic")
	}
	if err := s.Write(ctx, protocol.RadarLightService, protocol.RadarLightCharacteristic, protocol.LightInitCommand()); err != nil {
		return protocol.Wrap(protocol.KindConnection, "error sending light init", err)
	}
	if err := timeutil.Sleep(ctx, clock, settle); err != nil {
		return protocol.Wrap(protocol.KindConnection, "connect cancelled", err)
	}
	if err := s.Write(ctx, protocol.RadarLightService, protocol.RadarLightCharacteristic, protocol.RadarInitCommand()); err != nil {
		return protocol.Wrap(protocol.KindConnection, "error sending radar init", err)
	}
	return nil
}

// cycleLightMode asks the device to advance to its next light mode. The
// new mode arrives as a light notification.
func (s *session) cycleLightMode(ctx context.Context) error {
	if !s.isSubscribed(protocol.RadarLightCharacteristic) {
		return protocol.NewError(protocol.KindConnection, "could not access characteristic")
	}
	if err := s.Write(ctx, protocol.RadarLightService, protocol.RadarLightCharacteristic, protocol.NextModeCommand()); err != nil {
		return protocol.Wrap(protocol.KindLight, "error cycling light mode", err)
	}
	return nil
}
