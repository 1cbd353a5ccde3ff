package transport

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"tinygo.org/x/bluetooth"

	"github.com/banshee-data/l508/internal/monitoring"
)

const (
	eventBuffer   = 256
	readBufferLen = 512
)

// Bluetooth is a Transport backed by the host BLE adapter (BlueZ on Linux).
type Bluetooth struct {
	adapter *bluetooth.Adapter
	// address restricts discovery to one peripheral when set.
	address string

	mu      sync.Mutex
	enabled bool
	links   map[string]*bluetoothLink
}

// NewBluetooth returns a Transport using adapter. An empty address accepts
// the first peripheral advertising the requested service.
func NewBluetooth(adapter *bluetooth.Adapter, address string) *Bluetooth {
	return &Bluetooth{
		adapter: adapter,
		address: strings.ToUpper(strings.TrimSpace(address)),
		links:   make(map[string]*bluetoothLink),
	}
}

func (b *Bluetooth) Available() bool { return b.adapter != nil }

func (b *Bluetooth) enable() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.enabled {
		return nil
	}
	if err := b.adapter.Enable(); err != nil {
		return fmt.Errorf("failed to enable bluetooth adapter: %w", err)
	}
	b.adapter.SetConnectHandler(b.handleConnect)
	b.enabled = true
	return nil
}

// handleConnect forwards adapter level disconnects to the matching link.
func (b *Bluetooth) handleConnect(device bluetooth.Device, connected bool) {
	if connected {
		return
	}
	addr := strings.ToUpper(device.Address.String())
	b.mu.Lock()
	l, ok := b.links[addr]
	delete(b.links, addr)
	b.mu.Unlock()
	if ok {
		l.emit(Event{Kind: EventDisconnected})
	}
}

// Discover scans until a peripheral advertising service is seen or ctx ends.
func (b *Bluetooth) Discover(ctx context.Context, service string) (Device, error) {
	if !b.Available() {
		return nil, ErrUnavailable
	}
	if err := b.enable(); err != nil {
		return nil, err
	}
	uuid, err := bluetooth.ParseUUID(service)
	if err != nil {
		return nil, fmt.Errorf("invalid service uuid %q: %w", service, err)
	}

	found := make(chan bluetooth.ScanResult, 1)
	scanErr := make(chan error, 1)
	go func() {
		scanErr <- b.adapter.Scan(func(a *bluetooth.Adapter, result bluetooth.ScanResult) {
			if b.address != "" && strings.ToUpper(result.Address.String()) != b.address {
				return
			}
			if b.address == "" && !result.HasServiceUUID(uuid) {
				return
			}
			select {
			case found <- result:
				a.StopScan()
			default:
			}
		})
	}()

	select {
	case result := <-found:
		monitoring.Logf("found %q at %s (rssi %d)", result.LocalName(), result.Address.String(), result.RSSI)
		return &bluetoothDevice{transport: b, result: result}, nil
	case err := <-scanErr:
		if err == nil {
			err = fmt.Errorf("scan stopped before a device was found")
		}
		return nil, err
	case <-ctx.Done():
		b.adapter.StopScan()
		return nil, ctx.Err()
	}
}

type bluetoothDevice struct {
	transport *Bluetooth
	result    bluetooth.ScanResult
}

func (d *bluetoothDevice) Address() string { return d.result.Address.String() }
func (d *bluetoothDevice) Name() string    { return d.result.LocalName() }

func (d *bluetoothDevice) Connect(ctx context.Context) (Link, error) {
	var dev bluetooth.Device
	err := await(ctx, func() error {
		var err error
		dev, err = d.transport.adapter.Connect(d.result.Address, bluetooth.ConnectionParams{})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", d.Address(), err)
	}

	l := &bluetoothLink{
		device:          dev,
		characteristics: make(map[string]bluetooth.DeviceCharacteristic),
		subscribed:      make(map[string]bluetooth.DeviceCharacteristic),
		events:          make(chan Event, eventBuffer),
	}
	if err := await(ctx, l.resolve); err != nil {
		dev.Disconnect()
		return nil, fmt.Errorf("failed to discover services on %s: %w", d.Address(), err)
	}

	t := d.transport
	t.mu.Lock()
	t.links[strings.ToUpper(d.Address())] = l
	t.mu.Unlock()
	return l, nil
}

type bluetoothLink struct {
	device bluetooth.Device

	mu              sync.Mutex
	characteristics map[string]bluetooth.DeviceCharacteristic
	subscribed      map[string]bluetooth.DeviceCharacteristic
	closed          bool
	dropped         int

	events chan Event
}

// resolve discovers every service and characteristic once so later calls
// are simple map lookups.
func (l *bluetoothLink) resolve() error {
	services, err := l.device.DiscoverServices(nil)
	if err != nil {
		return err
	}
	for _, svc := range services {
		chars, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			return fmt.Errorf("service %s: %w", svc.UUID().String(), err)
		}
		for _, c := range chars {
			l.characteristics[Key(svc.UUID().String(), c.UUID().String())] = c
		}
	}
	return nil
}

func (l *bluetoothLink) lookup(service, characteristic string) (bluetooth.DeviceCharacteristic, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return bluetooth.DeviceCharacteristic{}, ErrLinkClosed
	}
	c, ok := l.characteristics[Key(service, characteristic)]
	if !ok {
		return bluetooth.DeviceCharacteristic{}, fmt.Errorf("%w: %s", ErrMissingCharacteristic, Key(service, characteristic))
	}
	return c, nil
}

func (l *bluetoothLink) Read(ctx context.Context, service, characteristic string) ([]byte, error) {
	c, err := l.lookup(service, characteristic)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, readBufferLen)
	var n int
	err = await(ctx, func() error {
		var err error
		n, err = c.Read(buf)
		return err
	})
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (l *bluetoothLink) Write(ctx context.Context, service, characteristic string, data []byte) error {
	c, err := l.lookup(service, characteristic)
	if err != nil {
		return err
	}
	return await(ctx, func() error {
		n, err := c.WriteWithoutResponse(data)
		if err != nil {
			return err
		}
		if n != len(data) {
			return fmt.Errorf("short write: %d of %d bytes", n, len(data))
		}
		return nil
	})
}

func (l *bluetoothLink) Subscribe(ctx context.Context, service, characteristic string) error {
	c, err := l.lookup(service, characteristic)
	if err != nil {
		return err
	}
	uuid := strings.ToLower(characteristic)
	err = await(ctx, func() error {
		return c.EnableNotifications(func(buf []byte) {
			data := make([]byte, len(buf))
			copy(data, buf)
			l.emit(Event{Kind: EventNotification, Characteristic: uuid, Data: data})
		})
	})
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.subscribed[Key(service, characteristic)] = c
	l.mu.Unlock()
	return nil
}

func (l *bluetoothLink) Unsubscribe(service, characteristic string) error {
	key := Key(service, characteristic)
	l.mu.Lock()
	c, ok := l.subscribed[key]
	delete(l.subscribed, key)
	l.mu.Unlock()
	if !ok {
		return ErrNotSubscribed
	}
	return c.EnableNotifications(nil)
}

func (l *bluetoothLink) Events() <-chan Event { return l.events }

// emit never blocks the BLE stack. Notifications beyond the buffer are
// dropped and counted. A disconnect is always delivered: queued
// notifications are evicted oldest first to make room for it.
func (l *bluetoothLink) emit(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	for {
		select {
		case l.events <- ev:
			return
		default:
		}
		if ev.Kind != EventDisconnected {
			l.noteDropped()
			return
		}
		// emitters are serialised by mu, so only the consumer competes
		select {
		case <-l.events:
			l.noteDropped()
		default:
		}
	}
}

func (l *bluetoothLink) noteDropped() {
	l.dropped++
	if l.dropped == 1 || l.dropped%100 == 0 {
		monitoring.Logf("bluetooth: event buffer full, dropped %d events", l.dropped)
	}
}

func (l *bluetoothLink) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()
	return l.device.Disconnect()
}
