package capture

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/l508/internal/protocol"
)

// TargetPoint is one active radar target observation.
type TargetPoint struct {
	Received    time.Time
	TargetID    int
	ThreatLevel int
	ThreatSide  int
	Range       float64
	Speed       float64
}

// Targets returns the active (threat level above zero) targets of a
// session in arrival order. An empty id selects the newest session.
func (s *Store) Targets(ctx context.Context, sessionID string) ([]TargetPoint, error) {
	sessionID, err := s.resolveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.received_unix_ns, t.target_id, t.threat_level, t.threat_side, t.range_m, t.speed_mps
		FROM radar_targets t JOIN frames f ON f.frame_id = t.frame_id
		WHERE f.session_id = ? AND t.threat_level > 0
		ORDER BY f.received_unix_ns, t.target_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query targets: %w", err)
	}
	defer rows.Close()

	var points []TargetPoint
	for rows.Next() {
		var p TargetPoint
		var received int64
		if err := rows.Scan(&received, &p.TargetID, &p.ThreatLevel, &p.ThreatSide, &p.Range, &p.Speed); err != nil {
			return nil, err
		}
		p.Received = time.Unix(0, received).UTC()
		points = append(points, p)
	}
	return points, rows.Err()
}

// Distribution summarises one measured quantity.
type Distribution struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	P50    float64 `json:"p50"`
	P90    float64 `json:"p90"`
	Max    float64 `json:"max"`
}

func distribution(values []float64) Distribution {
	if len(values) == 0 {
		return Distribution{}
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	d := Distribution{
		Count: len(sorted),
		Min:   floats.Min(sorted),
		Max:   floats.Max(sorted),
		P50:   stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P90:   stat.Quantile(0.9, stat.Empirical, sorted, nil),
	}
	if len(sorted) > 1 {
		d.Mean, d.StdDev = stat.MeanStdDev(sorted, nil)
	} else {
		d.Mean = sorted[0]
	}
	return d
}

// Summary describes a capture session.
type Summary struct {
	SessionID       string                     `json:"session_id"`
	Frames          int                        `json:"frames"`
	Kinds           map[protocol.FrameKind]int `json:"kinds"`
	DurationSeconds float64                    `json:"duration_seconds"`
	ThreatLevels    map[int]int                `json:"threat_levels"`
	Range           Distribution               `json:"range_m"`
	Speed           Distribution               `json:"speed_mps"`
}

// Summarize computes frame counts and target statistics for a session. An
// empty id selects the newest session.
func (s *Store) Summarize(ctx context.Context, sessionID string) (Summary, error) {
	sessionID, err := s.resolveSession(ctx, sessionID)
	if err != nil {
		return Summary{}, err
	}
	frames, err := s.Frames(ctx, sessionID)
	if err != nil {
		return Summary{}, err
	}
	targets, err := s.Targets(ctx, sessionID)
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{
		SessionID:    sessionID,
		Frames:       len(frames),
		Kinds:        make(map[protocol.FrameKind]int),
		ThreatLevels: make(map[int]int),
	}
	for _, f := range frames {
		sum.Kinds[f.Kind]++
	}
	if len(frames) > 1 {
		sum.DurationSeconds = frames[len(frames)-1].Received.Sub(frames[0].Received).Seconds()
	}

	ranges := make([]float64, 0, len(targets))
	speeds := make([]float64, 0, len(targets))
	for _, t := range targets {
		sum.ThreatLevels[t.ThreatLevel]++
		ranges = append(ranges, t.Range)
		speeds = append(speeds, t.Speed)
	}
	sum.Range = distribution(ranges)
	sum.Speed = distribution(speeds)
	return sum, nil
}
