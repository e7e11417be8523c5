package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"log/slog"

	_ "modernc.org/sqlite"

	"github.com/tjfontaine/ocpp-sniffer/internal/core/domain"
	"github.com/tjfontaine/ocpp-sniffer/internal/core/ports"
)

// Store is a SQLite mirror of the event log. Each row keeps the record's log
// line verbatim next to a few indexed columns used for ad-hoc SQL.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Ensure Store implements the EventSink and EventSource ports
var (
	_ ports.EventSink   = (*Store)(nil)
	_ ports.EventSource = (*Store)(nil)
)

// New creates a new SQLite store
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db, logger: slog.Default()}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp TEXT NOT NULL,
			charge_point_id TEXT NOT NULL,
			message_type_id INTEGER,
			unique_id TEXT,
			action TEXT,
			error_kind TEXT,
			line TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_charge_point ON events(charge_point_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_action ON events(action)`,
		`CREATE INDEX IF NOT EXISTS idx_events_message_type ON events(message_type_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

// Append inserts one record.
func (s *Store) Append(ctx context.Context, rec *domain.EventRecord) error {
	line, err := rec.MarshalLine()
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	var messageType, uniqueID, action, errorKind sql.NullString
	if mt, ok := domain.MessageTypeOf(rec.Decoded); ok {
		messageType = sql.NullString{String: fmt.Sprint(int(mt)), Valid: true}
	}
	if uid, ok := domain.UniqueIDOf(rec.Decoded); ok {
		uniqueID = sql.NullString{String: uid, Valid: true}
	}
	if a := domain.ActionOf(rec.Decoded); a != "" {
		action = sql.NullString{String: a, Valid: true}
	}
	if de, ok := rec.Decoded.(*domain.DecodeError); ok {
		errorKind = sql.NullString{String: string(de.Kind), Valid: true}
	}

	query := `INSERT INTO events (timestamp, charge_point_id, message_type_id, unique_id, action, error_kind, line)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		domain.FormatTimestamp(rec.Timestamp),
		rec.ChargePointID,
		messageType,
		uniqueID,
		action,
		errorKind,
		string(line),
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// Records replays rows in insertion order. Rows whose line no longer parses
// are skipped.
func (s *Store) Records(ctx context.Context) (iter.Seq[domain.EventRecord], error) {
	if err := s.db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	return func(yield func(domain.EventRecord) bool) {
		rows, err := s.db.QueryContext(ctx, `SELECT id, line FROM events ORDER BY id`)
		if err != nil {
			s.logger.Error("failed to query events", slog.String("error", err.Error()))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var id int64
			var line string
			if err := rows.Scan(&id, &line); err != nil {
				s.logger.Error("failed to scan event row", slog.String("error", err.Error()))
				return
			}
			rec, err := domain.ParseLine([]byte(line))
			if err != nil {
				s.logger.Debug("skipping event row", slog.Int64("id", id), slog.String("error", err.Error()))
				continue
			}
			if !yield(rec) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			s.logger.Error("event rows error", slog.String("error", err.Error()))
		}
	}, nil
}

// Count returns the number of stored events.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}
