// Package transport abstracts the GATT central role used to talk to the
// L508. A Transport discovers a Device, a Device connects to a Link, and a
// Link reads, writes and subscribes to characteristics. All asynchronous
// traffic from the peripheral (notifications and the disconnect signal)
// arrives on one ordered channel per Link.
package transport

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrUnavailable is returned when the runtime has no usable BLE adapter.
	ErrUnavailable = errors.New("bluetooth transport is not available")
	// ErrMissingCharacteristic is returned for a service/characteristic pair
	// the connected device does not expose.
	ErrMissingCharacteristic = errors.New("characteristic not found")
	// ErrNotSubscribed is returned when unsubscribing from a characteristic
	// that has no active subscription.
	ErrNotSubscribed = errors.New("characteristic not subscribed")
	// ErrLinkClosed is returned for calls on a closed Link.
	ErrLinkClosed = errors.New("link closed")
)

// EventKind identifies the type of an inbound Event.
type EventKind int

const (
	// EventNotification carries a characteristic value change.
	EventNotification EventKind = iota
	// EventDisconnected signals that the peripheral dropped the link.
	EventDisconnected
)

func (k EventKind) String() string {
	switch k {
	case EventNotification:
		return "notification"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Event is one inbound message from a Link.
type Event struct {
	Kind           EventKind
	Characteristic string // lower-case UUID, empty for EventDisconnected
	Data           []byte
}

// Transport discovers peripherals.
type Transport interface {
	// Available reports whether the runtime has a BLE capability at all.
	Available() bool
	// Discover finds a peripheral advertising service.
	Discover(ctx context.Context, service string) (Device, error)
}

// Device is a discovered peripheral that has not been connected yet.
type Device interface {
	Address() string
	Name() string
	// Connect opens the GATT link and resolves the peripheral's services.
	Connect(ctx context.Context) (Link, error)
}

// Link is a connected GATT session.
type Link interface {
	Read(ctx context.Context, service, characteristic string) ([]byte, error)
	Write(ctx context.Context, service, characteristic string, data []byte) error
	// Subscribe enables notifications. Values arrive on Events.
	Subscribe(ctx context.Context, service, characteristic string) error
	Unsubscribe(service, characteristic string) error
	// Events returns the ordered inbound event stream. The channel is never
	// closed by the Link; consumers stop reading once they tear down.
	Events() <-chan Event
	Close() error
}

// Key normalises a service/characteristic pair into a map key.
func Key(service, characteristic string) string {
	return strings.ToLower(service) + "/" + strings.ToLower(characteristic)
}

// await runs fn and returns its result, or ctx.Err() if ctx ends first.
// The underlying BLE calls do not accept a context so a timed out fn keeps
// running in the background until the stack returns.
func await(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
