// Package l508 is the protocol client for the Magene L508 radar taillight:
// device validation, notification routing, the arm sequence and the
// connection state machine. Consumers read a Snapshot or Subscribe to
// updates; they never touch the transport directly.
package l508

import (
	crand "crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/banshee-data/l508/internal/protocol"
)

// Status is the connection state of a Controller.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

// Result holds either a value or the error that replaced it. A nil
// *Result means the category has not produced anything yet.
type Result[T any] struct {
	Data T               `json:"data"`
	Err  *protocol.Error `json:"error,omitempty"`
}

// OK reports whether r holds a value.
func (r *Result[T]) OK() bool { return r != nil && r.Err == nil }

func success[T any](v T) *Result[T] { return &Result[T]{Data: v} }

func failure[T any](err *protocol.Error) *Result[T] { return &Result[T]{Err: err} }

// DeviceStats is the static identity and live battery level of the device.
type DeviceStats struct {
	Name            string `json:"name"`
	BatteryLevel    int    `json:"battery_level"`
	FirmwareVersion string `json:"firmware_version"`
}

// NoticeKind names a one-shot event for the presentation layer.
type NoticeKind string

const (
	NoticeConnectFailed NoticeKind = "connect-failed"
	NoticeConnected     NoticeKind = "connected"
	NoticeDisconnected  NoticeKind = "disconnected"
	// NoticeLost is sent when the device drops the link on its own.
	NoticeLost          NoticeKind = "lost"
)

// Notice is a one-shot event. Message is empty unless Kind is
// NoticeConnectFailed.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message,omitempty"`
	Time    time.Time  `json:"time"`
}

// Snapshot is a consistent copy of everything the controller publishes.
type Snapshot struct {
	Status           Status                       `json:"status"`
	Stats            *Result[DeviceStats]         `json:"stats"`
	Light            *Result[protocol.LightState] `json:"light"`
	Radar            *Result[protocol.RadarFrame] `json:"radar"`
	Unrecognized     int                          `json:"unrecognized"`
	LastUnrecognized string                       `json:"last_unrecognized,omitempty"`
	LastError        *protocol.Error              `json:"last_error,omitempty"`
}

// Update is delivered to subscribers after every state change. Notice is
// set only for lifecycle transitions.
type Update struct {
	Snapshot Snapshot `json:"snapshot"`
	Notice   *Notice  `json:"notice,omitempty"`
}

const subscriberBuffer = 16

// Store owns the published state and fans changes out to subscribers.
// Results are replaced, never mutated, so a Snapshot can share them.
type Store struct {
	mu   sync.Mutex
	snap Snapshot

	subscriberMu sync.Mutex
	subscribers  map[string]chan Update
}

// NewStore returns a Store in the disconnected state.
func NewStore() *Store {
	return &Store{
		snap:        Snapshot{Status: StatusDisconnected},
		subscribers: make(map[string]chan Update),
	}
}

// randomID generates a random subscriber ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe returns a channel of updates and the ID to unsubscribe with.
// Slow subscribers miss updates rather than stall the session.
func (s *Store) Subscribe() (string, <-chan Update) {
	id := randomID()
	ch := make(chan Update, subscriberBuffer)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes and closes a subscriber channel.
func (s *Store) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

func (s *Store) closeSubscribers() {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
}

func (s *Store) publish(snap Snapshot, notice *Notice) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- Update{Snapshot: snap, Notice: notice}:
		default:
		}
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Status returns the current connection state.
func (s *Store) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Status
}

// update applies fn under the lock and publishes the result.
func (s *Store) update(fn func(*Snapshot), notice *Notice) {
	s.mu.Lock()
	fn(&s.snap)
	snap := s.snap
	s.mu.Unlock()
	s.publish(snap, notice)
}

func (s *Store) setStatus(status Status) {
	s.update(func(snap *Snapshot) { snap.Status = status }, nil)
}

// connected moves to connected and publishes stats in the same update, so
// no subscriber sees stats without the connected status.
func (s *Store) connected(stats DeviceStats, notice *Notice) {
	s.update(func(snap *Snapshot) {
		snap.Status = StatusConnected
		snap.Stats = success(stats)
	}, notice)
}

func (s *Store) setLight(r *Result[protocol.LightState]) {
	s.update(func(snap *Snapshot) { snap.Light = r }, nil)
}

func (s *Store) setRadar(r *Result[protocol.RadarFrame]) {
	s.update(func(snap *Snapshot) { snap.Radar = r }, nil)
}

// setBattery replaces the battery level only while connected with a
// successful stats result. It reports whether the level was applied.
func (s *Store) setBattery(level int) bool {
	applied := false
	s.update(func(snap *Snapshot) {
		if snap.Status != StatusConnected || !snap.Stats.OK() {
			return
		}
		stats := snap.Stats.Data
		stats.BatteryLevel = level
		snap.Stats = success(stats)
		applied = true
	}, nil)
	return applied
}

func (s *Store) noteUnrecognized(hexFrame string) {
	s.update(func(snap *Snapshot) {
		snap.Unrecognized++
		snap.LastUnrecognized = hexFrame
	}, nil)
}

// reset clears the per-session slots and moves to disconnected.
func (s *Store) reset(notice *Notice) {
	s.update(func(snap *Snapshot) {
		snap.Status = StatusDisconnected
		snap.Stats = nil
		snap.Light = nil
		snap.Radar = nil
	}, notice)
}

func (s *Store) setLastError(err *protocol.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.LastError = err
}

func (s *Store) notify(notice *Notice) {
	s.update(func(*Snapshot) {}, notice)
}
