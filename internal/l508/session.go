package l508

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/l508/internal/monitoring"
	"github.com/banshee-data/l508/internal/transport"
)

// subscription names one notifying characteristic.
type subscription struct {
	service        string
	characteristic string
}

// session is one live connection. It is created by Connect and destroyed by
// teardown; the controller owns it exclusively.
type session struct {
	device    transport.Device
	link      transport.Link
	opTimeout time.Duration
	// stats is read during setup and published once connected.
	stats DeviceStats

	mu         sync.Mutex
	subscribed []subscription
	closed     bool

	// stop ends the event pump; done is closed once it has returned.
	stop context.CancelFunc
	done chan struct{}
}

func newSession(device transport.Device, link transport.Link, opTimeout time.Duration) *session {
	return &session{device: device, link: link, opTimeout: opTimeout}
}

// withOp bounds ctx by the per-operation timeout, if any.
func (s *session) withOp(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

func (s *session) Read(ctx context.Context, service, characteristic string) ([]byte, error) {
	ctx, cancel := s.withOp(ctx)
	defer cancel()
	return s.link.Read(ctx, service, characteristic)
}

func (s *session) Write(ctx context.Context, service, characteristic string, data []byte) error {
	ctx, cancel := s.withOp(ctx)
	defer cancel()
	return s.link.Write(ctx, service, characteristic, data)
}

func (s *session) subscribe(ctx context.Context, service, characteristic string) error {
	ctx, cancel := s.withOp(ctx)
	defer cancel()
	if err := s.link.Subscribe(ctx, service, characteristic); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribed = append(s.subscribed, subscription{service, characteristic})
	return nil
}

// isSubscribed reports whether characteristic has an active subscription.
func (s *session) isSubscribed(characteristic string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	for _, sub := range s.subscribed {
		if sub.characteristic == characteristic {
			return true
		}
	}
	return false
}

// pump feeds link events to handle until stopped or the link reports a
// disconnect, in which case lost is called once.
func (s *session) pump(handle func(transport.Event), lost func()) {
	ctx, cancel := context.WithCancel(context.Background())
	s.stop = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		events := s.link.Events()
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-events:
				if ev.Kind == transport.EventDisconnected {
					go lost()
					return
				}
				handle(ev)
			}
		}
	}()
}

// teardown stops the pump, unsubscribes and closes the link. Errors are
// logged and otherwise ignored. It is safe to call more than once.
func (s *session) teardown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	subs := s.subscribed
	s.subscribed = nil
	s.mu.Unlock()

	if s.stop != nil {
		s.stop()
		<-s.done
	}
	for _, sub := range subs {
		if err := s.link.Unsubscribe(sub.service, sub.characteristic); err != nil {
			monitoring.Logf("l508: unsubscribe %s: %v", sub.characteristic, err)
		}
	}
	if err := s.link.Close(); err != nil {
		monitoring.Logf("l508: close link to %s: %v", s.device.Address(), err)
	}
}
