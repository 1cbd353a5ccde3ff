package capture

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/l508/internal/monitoring"
	"github.com/banshee-data/l508/internal/protocol"
	"github.com/banshee-data/l508/internal/timeutil"
	"github.com/banshee-data/l508/internal/transport"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	monitoring.SetLogger(nil)
	s, err := Open(filepath.Join(t.TempDir(), "capture.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var t0 = time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)

func approach(rangeRaw uint8) []byte {
	return protocol.EncodeRadar(protocol.PageA, []protocol.RawTarget{
		{ThreatLevel: 1, ThreatSide: 1, Range: rangeRaw, Speed: 4},
	})
}

func TestOpen_PragmasAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.db")
	s, err := Open(path)
	require.NoError(t, err)

	var journalMode string
	require.NoError(t, s.DB().QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var busyTimeout int
	require.NoError(t, s.DB().QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	assert.Equal(t, 5000, busyTimeout)
	require.NoError(t, s.Close())

	// Reopening an up to date database is not an error.
	s, err = Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestStore_InsertAndFrames(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.StartSession(ctx, "C0:FF:EE:00:05:08", t0)
	require.NoError(t, err)
	assert.Len(t, id, 36)

	inputs := []Frame{
		{SessionID: id, Received: t0, Kind: protocol.FrameLight, Data: []byte{0x57, 0x0A, 0x00, 0x00, 0x00, 0x00}},
		{SessionID: id, Received: t0.Add(200 * time.Millisecond), Kind: protocol.FrameRadar, Data: approach(40)},
		{SessionID: id, Received: t0.Add(400 * time.Millisecond), Kind: protocol.FrameUnknown, Data: []byte{0x57, 0x09, 0x00, 0x31}},
	}
	for _, f := range inputs {
		_, err := s.Insert(ctx, f)
		require.NoError(t, err)
	}

	got, err := s.Frames(ctx, "")
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := range got {
		assert.Equal(t, inputs[i].Kind, got[i].Kind)
		assert.Equal(t, inputs[i].Data, got[i].Data)
		assert.True(t, inputs[i].Received.Equal(got[i].Received))
	}
	assert.Equal(t, "57 09 00 31", got[2].Hex())

	targets, err := s.Targets(ctx, id)
	require.NoError(t, err)
	require.Len(t, targets, 1, "only active targets are returned")
	assert.Equal(t, 1, targets[0].TargetID)
	assert.Equal(t, 40*protocol.RangeUnit, targets[0].Range)

	sessions, err := s.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, 3, sessions[0].Frames)
	assert.Equal(t, "C0:FF:EE:00:05:08", sessions[0].Device)
}

func TestStore_LatestSession(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Frames(ctx, "")
	assert.True(t, errors.Is(err, ErrNoSessions))

	first, err := s.StartSession(ctx, "A", t0)
	require.NoError(t, err)
	second, err := s.StartSession(ctx, "B", t0.Add(time.Hour))
	require.NoError(t, err)
	_, err = s.Insert(ctx, Frame{SessionID: first, Received: t0, Kind: protocol.FrameRadar, Data: approach(10)})
	require.NoError(t, err)

	latest, err := s.resolveSession(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, second, latest)

	frames, err := s.Frames(ctx, first)
	require.NoError(t, err)
	assert.Len(t, frames, 1)
}

func TestTimedFrames(t *testing.T) {
	frames := []Frame{
		{Received: t0, Data: []byte{1}},
		{Received: t0.Add(250 * time.Millisecond), Data: []byte{2}},
		{Received: t0.Add(time.Second), Data: []byte{3}},
	}
	want := []transport.TimedFrame{
		{Offset: 0, Data: []byte{1}},
		{Offset: 250 * time.Millisecond, Data: []byte{2}},
		{Offset: time.Second, Data: []byte{3}},
	}
	if diff := cmp.Diff(want, TimedFrames(frames)); diff != "" {
		t.Errorf("TimedFrames() mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, TimedFrames(nil))
}

func TestRecorder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id, err := s.StartSession(ctx, "SIM", t0)
	require.NoError(t, err)

	clock := timeutil.NewMockClock(t0)
	rec := NewRecorder(s, id, 64, clock)
	assert.Equal(t, id, rec.SessionID())

	frame := approach(20)
	rec.Record(protocol.FrameRadar, frame)
	frame[4] = 0xFF // the recorder must have copied the frame
	clock.Advance(time.Second)
	rec.Record(protocol.FrameUnknown, []byte{0xAA})

	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close())
	rec.Record(protocol.FrameUnknown, []byte{0xBB})

	assert.Equal(t, int64(2), rec.Written())
	assert.Equal(t, int64(1), rec.Dropped())

	frames, err := s.Frames(ctx, id)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, approach(20), frames[0].Data)
	assert.Equal(t, time.Second, frames[1].Received.Sub(frames[0].Received))
}

func TestSummarize(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id, err := s.StartSession(ctx, "SIM", t0)
	require.NoError(t, err)

	for i, r := range []uint8{40, 30, 20, 10} {
		_, err := s.Insert(ctx, Frame{SessionID: id, Received: t0.Add(time.Duration(i) * time.Second), Kind: protocol.FrameRadar, Data: approach(r)})
		require.NoError(t, err)
	}
	_, err = s.Insert(ctx, Frame{SessionID: id, Received: t0.Add(4 * time.Second), Kind: protocol.FrameANTCommon, Data: []byte{0x57, 0x09, 0x00, 0x52}})
	require.NoError(t, err)

	sum, err := s.Summarize(ctx, "")
	require.NoError(t, err)

	assert.Equal(t, id, sum.SessionID)
	assert.Equal(t, 5, sum.Frames)
	assert.Equal(t, map[protocol.FrameKind]int{protocol.FrameRadar: 4, protocol.FrameANTCommon: 1}, sum.Kinds)
	assert.Equal(t, 4.0, sum.DurationSeconds)
	assert.Equal(t, map[int]int{1: 4}, sum.ThreatLevels)

	assert.Equal(t, 4, sum.Range.Count)
	assert.InDelta(t, 25*protocol.RangeUnit, sum.Range.Mean, 1e-9)
	assert.Equal(t, 10*protocol.RangeUnit, sum.Range.Min)
	assert.Equal(t, 40*protocol.RangeUnit, sum.Range.Max)
	assert.Equal(t, 20*protocol.RangeUnit, sum.Range.P50)
	assert.Greater(t, sum.Range.StdDev, 0.0)
	assert.InDelta(t, 4*protocol.SpeedUnit, sum.Speed.Mean, 1e-9)
	assert.InDelta(t, 0, sum.Speed.StdDev, 1e-9)
}

func TestDistribution_Single(t *testing.T) {
	d := distribution([]float64{12.5})
	assert.Equal(t, Distribution{Count: 1, Mean: 12.5, Min: 12.5, P50: 12.5, P90: 12.5, Max: 12.5}, d)
	assert.Equal(t, Distribution{}, distribution(nil))
}
