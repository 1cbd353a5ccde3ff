// Package capture records raw L508 notifications to sqlite so unknown
// frames can be inspected and whole rides replayed through the simulated
// device.
package capture

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/l508/internal/monitoring"
	"github.com/banshee-data/l508/internal/protocol"
	"github.com/banshee-data/l508/internal/transport"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const pragmas = "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=temp_store(MEMORY)"

// Store is a capture database.
type Store struct {
	db   *sql.DB
	path string
}

// Session is one recorded connection.
type Session struct {
	ID      string    `json:"id"`
	Device  string    `json:"device"`
	Started time.Time `json:"started"`
	Frames  int       `json:"frames"`
}

// Frame is one recorded notification.
type Frame struct {
	ID        int64              `json:"id"`
	SessionID string             `json:"session_id"`
	Received  time.Time          `json:"received"`
	Kind      protocol.FrameKind `json:"kind"`
	Data      []byte             `json:"-"`
}

// Hex renders the frame bytes for display.
func (f Frame) Hex() string { return protocol.Hex(f.Data) }

// Open opens or creates the capture database at path and applies any
// pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+pragmas)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture db: %w", err)
	}
	s := &Store{db: db, path: path}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the handle for ad hoc queries.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	// Closing m would close the shared *sql.DB.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// migrateLogger implements migrate.Logger
type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Logf("[migrate] "+format, v...)
}

func (migrateLogger) Verbose() bool { return false }

// StartSession registers a new capture session and returns its ID.
func (s *Store) StartSession(ctx context.Context, device string, started time.Time) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, device, started_unix_ns) VALUES (?, ?, ?)`,
		id, device, started.UnixNano())
	if err != nil {
		return "", fmt.Errorf("failed to insert session: %w", err)
	}
	return id, nil
}

// Insert stores f. Radar frames that decode are also broken out into
// radar_targets rows so they can be queried directly.
func (s *Store) Insert(ctx context.Context, f Frame) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO frames (session_id, received_unix_ns, kind, hex, data) VALUES (?, ?, ?, ?, ?)`,
		f.SessionID, f.Received.UnixNano(), string(f.Kind), f.Hex(), f.Data)
	if err != nil {
		return 0, fmt.Errorf("failed to insert frame: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read frame id: %w", err)
	}

	if f.Kind == protocol.FrameRadar {
		if radar, err := protocol.DecodeRadar(f.Data); err == nil {
			for _, t := range radar.Targets {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO radar_targets (frame_id, target_id, threat_level, threat_side, range_m, speed_mps) VALUES (?, ?, ?, ?, ?, ?)`,
					id, t.ID, t.ThreatLevel, t.ThreatSide, t.Range, t.Speed); err != nil {
					return 0, fmt.Errorf("failed to insert radar target: %w", err)
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit frame: %w", err)
	}
	return id, nil
}

// Sessions lists sessions newest first.
func (s *Store) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.session_id, s.device, s.started_unix_ns, COUNT(f.frame_id)
		FROM sessions s LEFT JOIN frames f ON f.session_id = s.session_id
		GROUP BY s.session_id
		ORDER BY s.started_unix_ns DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		var started int64
		if err := rows.Scan(&sess.ID, &sess.Device, &started, &sess.Frames); err != nil {
			return nil, err
		}
		sess.Started = time.Unix(0, started).UTC()
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// ErrNoSessions is returned when a session is requested from an empty store.
var ErrNoSessions = errors.New("no capture sessions")

// resolveSession returns id, or the newest session when id is empty.
func (s *Store) resolveSession(ctx context.Context, id string) (string, error) {
	if id != "" {
		return id, nil
	}
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id FROM sessions ORDER BY started_unix_ns DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoSessions
	}
	if err != nil {
		return "", fmt.Errorf("failed to find latest session: %w", err)
	}
	return id, nil
}

// Frames returns the frames of a session in arrival order. An empty id
// selects the newest session.
func (s *Store) Frames(ctx context.Context, sessionID string) ([]Frame, error) {
	sessionID, err := s.resolveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT frame_id, session_id, received_unix_ns, kind, data
		FROM frames WHERE session_id = ?
		ORDER BY received_unix_ns, frame_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query frames: %w", err)
	}
	defer rows.Close()

	var frames []Frame
	for rows.Next() {
		var f Frame
		var received int64
		var kind string
		if err := rows.Scan(&f.ID, &f.SessionID, &received, &kind, &f.Data); err != nil {
			return nil, err
		}
		f.Received = time.Unix(0, received).UTC()
		f.Kind = protocol.FrameKind(kind)
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

// TimedFrames converts recorded frames into a replay script for the
// simulated device, offset from the first frame.
func TimedFrames(frames []Frame) []transport.TimedFrame {
	out := make([]transport.TimedFrame, 0, len(frames))
	for _, f := range frames {
		out = append(out, transport.TimedFrame{
			Offset: f.Received.Sub(frames[0].Received),
			Data:   f.Data,
		})
	}
	return out
}
