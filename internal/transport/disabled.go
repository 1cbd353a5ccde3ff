package transport

import "context"

// Disabled is a Transport used when the host has no BLE adapter or the
// radar is disabled on the command line. Every discovery fails with
// ErrUnavailable so the controller can reject connect attempts up front.
type Disabled struct{}

func (Disabled) Available() bool { return false }

func (Disabled) Discover(context.Context, string) (Device, error) { return nil, ErrUnavailable }
