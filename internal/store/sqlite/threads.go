package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nickd290/jobtrail/internal/domain"
)

const threadColumns = `thread_id, first_message_id, normalized_subject, customer_domain,
	po_number, job_id, last_message_at, last_synced_at, created_at`

// UpsertThread inserts a thread or refreshes an existing one in a single
// statement. PO number and customer domain are first-seen-wins.
func (s *Store) UpsertThread(ctx context.Context, t *domain.Thread) (*domain.Thread, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("upsert thread: begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO threads
		(thread_id, first_message_id, normalized_subject, customer_domain, po_number,
		 last_message_at, last_synced_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET
			last_message_at = COALESCE(excluded.last_message_at, threads.last_message_at),
			last_synced_at  = excluded.last_synced_at,
			po_number       = COALESCE(threads.po_number, excluded.po_number),
			customer_domain = COALESCE(threads.customer_domain, excluded.customer_domain)
	`,
		t.ThreadID,
		t.FirstMessageID,
		t.NormalizedSubject,
		nullString(t.CustomerDomain),
		nullString(t.PONumber),
		nullMillis(t.LastMessageAt),
		toMillis(t.LastSyncedAt),
		toMillis(t.CreatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert thread: %w", err)
	}

	stored, err := scanThread(tx.QueryRowContext(ctx,
		`SELECT `+threadColumns+` FROM threads WHERE thread_id = ?`, t.ThreadID))
	if err != nil {
		return nil, fmt.Errorf("upsert thread: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("upsert thread: commit: %w", err)
	}
	return stored, nil
}

// GetThread retrieves a thread by its external id.
func (s *Store) GetThread(ctx context.Context, threadID string) (*domain.Thread, error) {
	t, err := scanThread(s.db.QueryRowContext(ctx,
		`SELECT `+threadColumns+` FROM threads WHERE thread_id = ?`, threadID))
	if err != nil {
		return nil, fmt.Errorf("get thread %s: %w", threadID, err)
	}
	return t, nil
}

// LinkThread sets the thread's job and claims its unlinked events.
func (s *Store) LinkThread(ctx context.Context, threadID, jobID string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("link thread: begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE threads SET job_id = ? WHERE thread_id = ?`, jobID, threadID)
	if err != nil {
		return 0, fmt.Errorf("link thread: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("link thread: rows affected: %w", err)
	}
	if n == 0 {
		return 0, fmt.Errorf("link thread %s: %w", threadID, domain.ErrThreadNotFound)
	}

	res, err = tx.ExecContext(ctx,
		`UPDATE events SET job_id = ? WHERE thread_id = ? AND job_id IS NULL`, jobID, threadID)
	if err != nil {
		return 0, fmt.Errorf("link thread: reassign events: %w", err)
	}
	reassigned, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("link thread: rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("link thread: commit: %w", err)
	}
	return int(reassigned), nil
}

// ListOrphanThreads returns threads without a job, newest first.
func (s *Store) ListOrphanThreads(ctx context.Context, limit int) ([]domain.Thread, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+threadColumns+`
		FROM threads
		WHERE job_id IS NULL
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query orphan threads: %w", err)
	}
	defer rows.Close()

	threads := []domain.Thread{}
	for rows.Next() {
		t, err := scanThread(rows)
		if err != nil {
			return nil, err
		}
		threads = append(threads, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orphan threads: %w", err)
	}
	return threads, nil
}

func scanThread(row rowScanner) (*domain.Thread, error) {
	var (
		t                        domain.Thread
		domainName, po, jobID    sql.NullString
		lastMessage              sql.NullInt64
		lastSynced, createdAtInt int64
	)
	err := row.Scan(
		&t.ThreadID,
		&t.FirstMessageID,
		&t.NormalizedSubject,
		&domainName,
		&po,
		&jobID,
		&lastMessage,
		&lastSynced,
		&createdAtInt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrThreadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan thread: %w", err)
	}
	t.CustomerDomain = domainName.String
	t.PONumber = po.String
	t.JobID = jobID.String
	t.LastMessageAt = timePtr(lastMessage)
	t.LastSyncedAt = fromMillis(lastSynced)
	t.CreatedAt = fromMillis(createdAtInt)
	return &t, nil
}
