package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickd290/jobtrail/internal/domain"
)

func TestUpsertThread_CreatesUnlinked(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	last := testNow.Add(-time.Hour)

	th, err := s.UpsertThread(ctx, &domain.Thread{
		ThreadID:          "T1",
		FirstMessageID:    "M0",
		NormalizedSubject: "proof for po 44517",
		CustomerDomain:    "acme.com",
		PONumber:          "44517",
		LastMessageAt:     &last,
		LastSyncedAt:      testNow,
		CreatedAt:         testNow,
	})
	require.NoError(t, err)

	assert.Equal(t, "T1", th.ThreadID)
	assert.Equal(t, "44517", th.PONumber)
	assert.Equal(t, "acme.com", th.CustomerDomain)
	assert.False(t, th.Linked())
	require.NotNil(t, th.LastMessageAt)
	assert.True(t, last.Equal(*th.LastMessageAt))
}

func TestUpsertThread_FirstSeenWins(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertThread(ctx, &domain.Thread{
		ThreadID: "T1", FirstMessageID: "M0", NormalizedSubject: "proof",
		LastSyncedAt: testNow, CreatedAt: testNow,
	})
	require.NoError(t, err)

	later := testNow.Add(time.Hour)
	th, err := s.UpsertThread(ctx, &domain.Thread{
		ThreadID: "T1", FirstMessageID: "M9", NormalizedSubject: "other",
		PONumber: "111", CustomerDomain: "acme.com",
		LastMessageAt: &later, LastSyncedAt: later, CreatedAt: later,
	})
	require.NoError(t, err)
	assert.Equal(t, "111", th.PONumber, "unset PO is filled")
	assert.Equal(t, "acme.com", th.CustomerDomain)
	assert.Equal(t, "M0", th.FirstMessageID)
	assert.True(t, testNow.Equal(th.CreatedAt))
	assert.True(t, later.Equal(th.LastSyncedAt))

	th, err = s.UpsertThread(ctx, &domain.Thread{
		ThreadID: "T1", FirstMessageID: "M10", NormalizedSubject: "other",
		PONumber: "222", CustomerDomain: "evil.com",
		LastSyncedAt: later.Add(time.Hour), CreatedAt: later,
	})
	require.NoError(t, err)
	assert.Equal(t, "111", th.PONumber, "populated PO is kept")
	assert.Equal(t, "acme.com", th.CustomerDomain)
	require.NotNil(t, th.LastMessageAt, "absent lastMessageAt keeps the old value")
	assert.True(t, later.Equal(*th.LastMessageAt))
}

func TestGetThread_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.GetThread(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrThreadNotFound)
}

func TestLinkThread_ReassignsUnlinkedEvents(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestThread(t, s, "T1")

	_, _, err := s.InsertEvent(ctx, testEvent("e1", "M1", "T1", testNow))
	require.NoError(t, err)
	linked := testEvent("e2", "M2", "T1", testNow)
	linked.JobID = "other-job"
	_, _, err = s.InsertEvent(ctx, linked)
	require.NoError(t, err)

	n, err := s.LinkThread(ctx, "T1", "job-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	th, err := s.GetThread(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", th.JobID)

	e1, err := s.GetEvent(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", e1.JobID)
	e2, err := s.GetEvent(ctx, "e2")
	require.NoError(t, err)
	assert.Equal(t, "other-job", e2.JobID, "already linked events are untouched")
}

func TestLinkThread_MissingThread(t *testing.T) {
	s := createTestStore(t)

	_, err := s.LinkThread(context.Background(), "nope", "job-1")
	assert.ErrorIs(t, err, domain.ErrThreadNotFound)
}

func TestListOrphanThreads_NewestFirst(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"T1", "T2", "T3"} {
		created := testNow.Add(time.Duration(i) * time.Minute)
		_, err := s.UpsertThread(ctx, &domain.Thread{
			ThreadID: id, FirstMessageID: "m", NormalizedSubject: "s",
			LastSyncedAt: created, CreatedAt: created,
		})
		require.NoError(t, err)
	}
	_, err := s.LinkThread(ctx, "T2", "job-1")
	require.NoError(t, err)

	orphans, err := s.ListOrphanThreads(ctx, 10)
	require.NoError(t, err)
	require.Len(t, orphans, 2)
	assert.Equal(t, "T3", orphans[0].ThreadID)
	assert.Equal(t, "T1", orphans[1].ThreadID)

	limited, err := s.ListOrphanThreads(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
