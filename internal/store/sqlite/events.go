package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nickd290/jobtrail/internal/domain"
)

const eventColumns = `id, message_id, thread_id, type, confidence, source, signals, links,
	job_id, needs_review, review_note, created_at`

// InsertEvent inserts e unless its message id is already recorded.
// Uses ON CONFLICT(message_id) DO NOTHING so concurrent deliveries of one
// message resolve to a single row; the loser reads the winner back.
func (s *Store) InsertEvent(ctx context.Context, e *domain.Event) (*domain.Event, bool, error) {
	signals, err := marshalList(e.Signals)
	if err != nil {
		return nil, false, fmt.Errorf("insert event: %w", err)
	}
	links, err := marshalList(e.Links)
	if err != nil {
		return nil, false, fmt.Errorf("insert event: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("insert event: begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO events
		(id, message_id, thread_id, type, confidence, source, signals, links,
		 job_id, needs_review, review_note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(message_id) DO NOTHING
	`,
		e.ID,
		e.MessageID,
		e.ThreadID,
		string(e.Type),
		e.Confidence,
		e.Source,
		signals,
		links,
		nullString(e.JobID),
		boolInt(e.NeedsReview),
		nullString(e.ReviewNote),
		toMillis(e.CreatedAt),
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert event: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("insert event: rows affected: %w", err)
	}

	stored, err := scanEvent(tx.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE message_id = ?`, e.MessageID))
	if err != nil {
		return nil, false, fmt.Errorf("insert event: read back: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("insert event: commit: %w", err)
	}
	return stored, rowsAffected > 0, nil
}

// GetEvent retrieves an event by id.
func (s *Store) GetEvent(ctx context.Context, eventID string) (*domain.Event, error) {
	e, err := scanEvent(s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ?`, eventID))
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", eventID, err)
	}
	return e, nil
}

// GetEventByMessageID retrieves an event by message id.
func (s *Store) GetEventByMessageID(ctx context.Context, messageID string) (*domain.Event, error) {
	e, err := scanEvent(s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE message_id = ?`, messageID))
	if err != nil {
		return nil, fmt.Errorf("get event by message %s: %w", messageID, err)
	}
	return e, nil
}

// ResolveEventReview clears the review flag and backfills job and note.
func (s *Store) ResolveEventReview(ctx context.Context, eventID, jobID, note string) (*domain.Event, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("resolve review: begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE events SET
			needs_review = 0,
			job_id       = COALESCE(?, job_id),
			review_note  = COALESCE(?, review_note)
		WHERE id = ?
	`, nullString(jobID), nullString(note), eventID)
	if err != nil {
		return nil, fmt.Errorf("resolve review: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("resolve review: rows affected: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("resolve review %s: %w", eventID, domain.ErrEventNotFound)
	}

	e, err := scanEvent(tx.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ?`, eventID))
	if err != nil {
		return nil, fmt.Errorf("resolve review: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("resolve review: commit: %w", err)
	}
	return e, nil
}

// ListNeedsReview returns flagged events, newest first.
func (s *Store) ListNeedsReview(ctx context.Context, limit int) ([]domain.Event, error) {
	return s.queryEvents(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE needs_review = 1
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
}

// ListJobEvents returns a job's events, oldest first.
func (s *Store) ListJobEvents(ctx context.Context, jobID string) ([]domain.Event, error) {
	return s.queryEvents(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE job_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, jobID)
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []domain.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func scanEvent(row rowScanner) (*domain.Event, error) {
	var (
		e                 domain.Event
		eventType         string
		signals, links    string
		jobID, reviewNote sql.NullString
		needsReview       int
		createdAtMillis   int64
	)
	err := row.Scan(
		&e.ID,
		&e.MessageID,
		&e.ThreadID,
		&eventType,
		&e.Confidence,
		&e.Source,
		&signals,
		&links,
		&jobID,
		&needsReview,
		&reviewNote,
		&createdAtMillis,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan event: %w", err)
	}

	e.Type = domain.EventType(eventType)
	if e.Signals, err = unmarshalList(signals); err != nil {
		return nil, fmt.Errorf("scan event %s signals: %w", e.ID, err)
	}
	if e.Links, err = unmarshalList(links); err != nil {
		return nil, fmt.Errorf("scan event %s links: %w", e.ID, err)
	}
	e.JobID = jobID.String
	e.NeedsReview = needsReview != 0
	e.ReviewNote = reviewNote.String
	e.CreatedAt = fromMillis(createdAtMillis)
	return &e, nil
}
