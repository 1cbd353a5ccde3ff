package transport

import (
	"context"
	"strings"
	"sync"
)

// MockTransport implements Transport with configurable behaviour for tests
// and the simulated device.
type MockTransport struct {
	mu sync.Mutex

	// Device is returned by Discover.
	Device Device

	// DiscoverError is returned by Discover if set.
	DiscoverError error

	// Unavailable makes Available report false.
	Unavailable bool

	// DiscoverCalls records the services passed to Discover.
	DiscoverCalls []string
}

// NewMockTransport returns a MockTransport that discovers device.
func NewMockTransport(device Device) *MockTransport {
	return &MockTransport{Device: device}
}

func (m *MockTransport) Available() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.Unavailable
}

func (m *MockTransport) Discover(ctx context.Context, service string) (Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DiscoverCalls = append(m.DiscoverCalls, service)
	if m.Unavailable {
		return nil, ErrUnavailable
	}
	if m.DiscoverError != nil {
		return nil, m.DiscoverError
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.Device, nil
}

// MockDevice implements Device and hands out Link on Connect.
type MockDevice struct {
	DeviceAddress string
	DeviceName    string
	Link          *MockLink
	ConnectError  error

	mu           sync.Mutex
	ConnectCalls int
}

func (d *MockDevice) Address() string { return d.DeviceAddress }
func (d *MockDevice) Name() string    { return d.DeviceName }

func (d *MockDevice) Connect(ctx context.Context) (Link, error) {
	d.mu.Lock()
	d.ConnectCalls++
	d.mu.Unlock()
	if d.ConnectError != nil {
		return nil, d.ConnectError
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.Link.reopen()
	return d.Link, nil
}

// MockWrite records one Write call.
type MockWrite struct {
	Key  string
	Data []byte
}

// MockLink implements Link. Values are served from Values keyed by Key(),
// and per-key errors can be injected for every operation.
type MockLink struct {
	mu sync.Mutex

	// Values holds readable characteristic values.
	Values map[string][]byte

	// ReadErrors, WriteErrors and SubscribeErrors are returned for the
	// matching key if set.
	ReadErrors      map[string]error
	WriteErrors     map[string]error
	SubscribeErrors map[string]error

	// UnsubscribeError is returned by every Unsubscribe call if set.
	UnsubscribeError error

	// CloseError is returned by Close if set.
	CloseError error

	// OnWrite, if set, is called after a successful write, outside the lock.
	// The simulated device uses it to answer commands.
	OnWrite func(key string, data []byte)

	// Writes records every successful write in order.
	Writes []MockWrite

	// Subscribed tracks active subscriptions.
	Subscribed map[string]bool

	// Closed indicates whether Close was called.
	Closed     bool
	CloseCalls int

	events chan Event
}

// NewMockLink returns an empty MockLink.
func NewMockLink() *MockLink {
	return &MockLink{
		Values:          make(map[string][]byte),
		ReadErrors:      make(map[string]error),
		WriteErrors:     make(map[string]error),
		SubscribeErrors: make(map[string]error),
		Subscribed:      make(map[string]bool),
		events:          make(chan Event, eventBuffer),
	}
}

// reopen clears the closed flag and any events left from a previous session.
func (l *MockLink) reopen() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Closed = false
	for {
		select {
		case <-l.events:
		default:
			return
		}
	}
}

// SetValue stores a readable value for service/characteristic.
func (l *MockLink) SetValue(service, characteristic string, value []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Values[Key(service, characteristic)] = value
}

func (l *MockLink) Read(ctx context.Context, service, characteristic string) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Closed {
		return nil, ErrLinkClosed
	}
	key := Key(service, characteristic)
	if err := l.ReadErrors[key]; err != nil {
		return nil, err
	}
	v, ok := l.Values[key]
	if !ok {
		return nil, ErrMissingCharacteristic
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (l *MockLink) Write(ctx context.Context, service, characteristic string, data []byte) error {
	key := Key(service, characteristic)
	l.mu.Lock()
	if l.Closed {
		l.mu.Unlock()
		return ErrLinkClosed
	}
	if err := l.WriteErrors[key]; err != nil {
		l.mu.Unlock()
		return err
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	l.Writes = append(l.Writes, MockWrite{Key: key, Data: cp})
	hook := l.OnWrite
	l.mu.Unlock()

	if hook != nil {
		hook(key, cp)
	}
	return nil
}

func (l *MockLink) Subscribe(ctx context.Context, service, characteristic string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Closed {
		return ErrLinkClosed
	}
	key := Key(service, characteristic)
	if err := l.SubscribeErrors[key]; err != nil {
		return err
	}
	l.Subscribed[key] = true
	return nil
}

func (l *MockLink) Unsubscribe(service, characteristic string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := Key(service, characteristic)
	if !l.Subscribed[key] {
		return ErrNotSubscribed
	}
	delete(l.Subscribed, key)
	return l.UnsubscribeError
}

func (l *MockLink) Events() <-chan Event { return l.events }

func (l *MockLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Closed = true
	l.CloseCalls++
	return l.CloseError
}

// Notify queues a notification for characteristic if it is subscribed.
// It reports whether the event was queued.
func (l *MockLink) Notify(characteristic string, data []byte) bool {
	l.mu.Lock()
	subscribed := false
	for key := range l.Subscribed {
		if strings.HasSuffix(key, "/"+strings.ToLower(characteristic)) {
			subscribed = true
			break
		}
	}
	l.mu.Unlock()
	if !subscribed {
		return false
	}

	cp := make([]byte, len(data))
	copy(cp, data)
	select {
	case l.events <- Event{Kind: EventNotification, Characteristic: strings.ToLower(characteristic), Data: cp}:
		return true
	default:
		return false
	}
}

// Drop simulates the peripheral going away.
func (l *MockLink) Drop() {
	l.events <- Event{Kind: EventDisconnected}
}

// ActiveSubscriptions returns the number of active subscriptions.
func (l *MockLink) ActiveSubscriptions() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Subscribed)
}

// WrittenData returns a copy of the recorded writes.
func (l *MockLink) WrittenData() []MockWrite {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]MockWrite, len(l.Writes))
	copy(out, l.Writes)
	return out
}

// IsClosed reports whether Close was called since the last Connect.
func (l *MockLink) IsClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.Closed
}
