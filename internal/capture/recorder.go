package capture

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/l508/internal/monitoring"
	"github.com/banshee-data/l508/internal/protocol"
	"github.com/banshee-data/l508/internal/timeutil"
)

// Recorder writes frames to a Store from a background goroutine. Record
// never blocks: frames arriving while the buffer is full are dropped and
// counted.
type Recorder struct {
	store     *Store
	sessionID string
	clock     timeutil.Clock

	mu     sync.RWMutex
	frames chan Frame
	closed bool
	done   chan struct{}

	written atomic.Int64
	dropped atomic.Int64
}

// NewRecorder starts a recorder for sessionID with room for buffer
// pending frames.
func NewRecorder(store *Store, sessionID string, buffer int, clock timeutil.Clock) *Recorder {
	if buffer < 1 {
		buffer = 1
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	r := &Recorder{
		store:     store,
		sessionID: sessionID,
		clock:     clock,
		frames:    make(chan Frame, buffer),
		done:      make(chan struct{}),
	}
	go r.run()
	return r
}

// SessionID returns the session frames are recorded under.
func (r *Recorder) SessionID() string { return r.sessionID }

// Record queues a copy of frame.
func (r *Recorder) Record(kind protocol.FrameKind, frame []byte) {
	data := make([]byte, len(frame))
	copy(data, frame)
	f := Frame{SessionID: r.sessionID, Received: r.clock.Now(), Kind: kind, Data: data}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.dropped.Add(1)
		return
	}
	select {
	case r.frames <- f:
	default:
		r.dropped.Add(1)
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for f := range r.frames {
		if _, err := r.store.Insert(context.Background(), f); err != nil {
			monitoring.Logf("capture: %v", err)
			continue
		}
		r.written.Add(1)
	}
}

// Close stops accepting frames and waits for queued ones to be written.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.frames)
	r.mu.Unlock()

	<-r.done
	if n := r.dropped.Load(); n > 0 {
		monitoring.Logf("capture: dropped %d frames", n)
	}
	return nil
}

// Written returns the number of frames stored.
func (r *Recorder) Written() int64 { return r.written.Load() }

// Dropped returns the number of frames discarded.
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }
