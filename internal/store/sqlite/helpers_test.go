package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nickd290/jobtrail/internal/domain"
	"github.com/nickd290/jobtrail/internal/testutil"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// createTestStore opens a fresh database in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithClock(testutil.NewFixedClock(testNow)))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestThread(t *testing.T, s *Store, threadID string) *domain.Thread {
	t.Helper()
	th, err := s.UpsertThread(context.Background(), &domain.Thread{
		ThreadID:          threadID,
		FirstMessageID:    "first-" + threadID,
		NormalizedSubject: "proof",
		LastSyncedAt:      testNow,
		CreatedAt:         testNow,
	})
	require.NoError(t, err)
	return th
}

func createTestJob(t *testing.T, s *Store, id, number, po string, created time.Time) *domain.Job {
	t.Helper()
	j := &domain.Job{
		ID:               id,
		JobNumber:        number,
		CustomerPONumber: po,
		CustomerEmail:    "buyer@acme.com",
		CreatedAt:        created,
	}
	require.NoError(t, s.SaveJob(context.Background(), j))
	return j
}

func testEvent(id, messageID, threadID string, created time.Time) *domain.Event {
	return &domain.Event{
		ID:         id,
		MessageID:  messageID,
		ThreadID:   threadID,
		Type:       domain.EventProofReceivedFromVendor,
		Confidence: 0.9,
		Source:     "webhook",
		Signals:    []string{"subject:proof"},
		Links:      []string{"https://we.tl/t-1?a=1&b=2"},
		CreatedAt:  created,
	}
}
