package l508

import (
	"context"
	"strings"

	"github.com/banshee-data/l508/internal/protocol"
)

// Reader reads a characteristic value.
type Reader interface {
	Read(ctx context.Context, service, characteristic string) ([]byte, error)
}

// Identity is the manufacturer and model a device must report.
type Identity struct {
	Manufacturer string
	Model        string
}

// DefaultIdentity is the L508's genuine identity.
var DefaultIdentity = Identity{
	Manufacturer: protocol.ExpectedManufacturer,
	Model:        protocol.ExpectedModel,
}

// Validate reads the manufacturer and model strings from the device info
// service and compares them to want. The manufacturer must match exactly;
// the model is compared after trimming surrounding whitespace. A failed
// read is a connection error, a mismatch a validation error.
func Validate(ctx context.Context, r Reader, want Identity) error {
	manufacturer, err := r.Read(ctx, protocol.DeviceInfoService, protocol.ManufacturerCharacteristic)
	if err != nil {
		return protocol.Wrap(protocol.KindConnection, "error reading manufacturer", err)
	}
	model, err := r.Read(ctx, protocol.DeviceInfoService, protocol.ModelCharacteristic)
	if err != nil {
		return protocol.Wrap(protocol.KindConnection, "error reading model", err)
	}

	if got := string(manufacturer); got != want.Manufacturer {
		return protocol.NewError(protocol.KindValidation, "error validating device: unexpected manufacturer (%s)", got)
	}
	if got := strings.TrimSpace(string(model)); got != strings.TrimSpace(want.Model) {
		return protocol.NewError(protocol.KindValidation, "error validating device: unexpected model (%s)", got)
	}
	return nil
}
