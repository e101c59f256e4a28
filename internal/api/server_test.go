package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickd290/jobtrail/internal/domain"
	"github.com/nickd290/jobtrail/internal/ledger"
	"github.com/nickd290/jobtrail/internal/match"
	"github.com/nickd290/jobtrail/internal/store/memory"
	"github.com/nickd290/jobtrail/internal/testutil"
	"github.com/nickd290/jobtrail/internal/thread"
)

const testSecret = "s3cret"

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	store   *memory.Store
	handler http.Handler
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	st := memory.New()
	clk := testutil.NewFixedClock(testNow)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	reg := thread.New(st, st, thread.WithClock(clk), thread.WithLogger(logger))
	eng := match.New(st, st, match.WithClock(clk), match.WithLogger(logger))
	svc := ledger.NewService(st, st, st,
		ledger.WithClock(clk),
		ledger.WithLogger(logger),
		ledger.WithIDGenerator(testutil.NewSequentialIDs("evt")),
	)
	opts = append([]Option{WithSecret(testSecret), WithLogger(logger)}, opts...)
	return &testEnv{store: st, handler: New(reg, eng, svc, opts...).Handler()}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, BasePath+path, &buf)
	req.Header.Set(SecretHeader, testSecret)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth_NoAuth(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, BasePath+"/health", nil)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[healthResponse](t, rec)
	assert.Equal(t, "ok", got.Status)
	assert.True(t, got.SecretConfigured)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestAuth(t *testing.T) {
	env := newTestEnv(t)

	for _, secret := range []string{"", "wrong"} {
		req := httptest.NewRequest(http.MethodPost, BasePath+"/classify", bytes.NewBufferString(`{"subject":"PO 1"}`))
		if secret != "" {
			req.Header.Set(SecretHeader, secret)
		}
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	}
}

func TestAuth_UnconfiguredSecretFailsClosed(t *testing.T) {
	env := newTestEnv(t, WithSecret(""))

	rec := env.do(t, http.MethodPost, "/classify", map[string]string{"subject": "PO 1"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, BasePath+"/health", nil)
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.False(t, decodeBody[healthResponse](t, rec).SecretConfigured)
}

func TestRequestIDPropagates(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, BasePath+"/event", bytes.NewBufferString(`{}`))
	req.Header.Set(SecretHeader, testSecret)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
	p := decodeBody[ProblemDetail](t, rec)
	assert.Equal(t, "req-42", p.RequestID)
	assert.Equal(t, BasePath+"/event", p.Instance)
}

func TestThreadEventFlow(t *testing.T) {
	env := newTestEnv(t)
	env.store.PutJob(domain.Job{
		ID:               "J-2001",
		JobNumber:        "J-2001",
		CustomerPONumber: "44517",
		CustomerEmail:    "buyer@acme.com",
		CreatedAt:        testNow.Add(-5 * 24 * time.Hour),
	})

	rec := env.do(t, http.MethodPost, "/thread", map[string]any{
		"threadId":       "T1",
		"firstMessageId": "M0",
		"subject":        "Re: Proof for PO 44517",
		"from":           "vendor@printco.com",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	tr := decodeBody[threadResponse](t, rec)
	assert.Equal(t, "44517", tr.Thread.PONumber)
	assert.Empty(t, tr.JobNumber)

	rec = env.do(t, http.MethodPost, "/match", map[string]any{
		"threadId": "T1",
		"subject":  "Re: Proof for PO 44517",
		"from":     "vendor@printco.com",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	mr := decodeBody[match.Result](t, rec)
	assert.Equal(t, match.MethodPOMatch, mr.Method)
	assert.Equal(t, "J-2001", mr.JobID)

	event := map[string]any{
		"threadId":   "T1",
		"messageId":  "M1",
		"type":       "PROOF_RECEIVED_FROM_VENDOR",
		"confidence": 0.95,
		"source":     "webhook",
		"jobId":      "J-2001",
	}
	rec = env.do(t, http.MethodPost, "/event", event)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	cr := decodeBody[ledger.CreateResult](t, rec)
	assert.True(t, cr.Created)
	assert.True(t, cr.StatusUpdated)
	assert.Equal(t, domain.StageProofReceived, cr.Decision.NewStage)

	rec = env.do(t, http.MethodPost, "/event", event)
	require.Equal(t, http.StatusOK, rec.Code)
	cr = decodeBody[ledger.CreateResult](t, rec)
	assert.False(t, cr.Created)
	assert.False(t, cr.StatusUpdated)

	rec = env.do(t, http.MethodPost, "/link-thread", linkRequest{ThreadID: "T1", JobID: "J-2001"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decodeBody[linkResponse](t, rec).Reassigned)

	rec = env.do(t, http.MethodPost, "/thread", map[string]any{
		"threadId": "T1", "firstMessageId": "M0", "subject": "Re: again", "from": "vendor@printco.com",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "J-2001", decodeBody[threadResponse](t, rec).JobNumber)
}

func TestEvent_Errors(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/thread", map[string]any{"threadId": "T1", "firstMessageId": "M0", "from": "a@b.com"})

	tests := []struct {
		name   string
		body   any
		status int
		field  string
	}{
		{"bad type", map[string]any{"threadId": "T1", "messageId": "M1", "type": "NOPE", "source": "webhook"}, http.StatusBadRequest, "type"},
		{"missing message", map[string]any{"threadId": "T1", "type": "JOB_SHIPPED", "source": "webhook"}, http.StatusBadRequest, "messageId"},
		{"missing confidence", map[string]any{"threadId": "T1", "messageId": "M1", "type": "JOB_SHIPPED", "source": "webhook"}, http.StatusBadRequest, "confidence"},
		{"unknown thread", map[string]any{"threadId": "T9", "messageId": "M1", "type": "JOB_SHIPPED", "confidence": 0.9, "source": "webhook"}, http.StatusNotFound, ""},
		{"unknown job", map[string]any{"threadId": "T1", "messageId": "M1", "type": "JOB_SHIPPED", "confidence": 0.9, "source": "webhook", "jobId": "nope"}, http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/event", tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			p := decodeBody[ProblemDetail](t, rec)
			assert.Equal(t, tt.status, p.Status)
			assert.Equal(t, tt.field, p.Field)
		})
	}
}

func TestMalformedBody(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, BasePath+"/thread", bytes.NewBufferString(`{"threadId":`))
	req.Header.Set(SecretHeader, testSecret)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLinkThread_NotFound(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/link-thread", linkRequest{ThreadID: "T1", JobID: "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "job not found", decodeBody[ProblemDetail](t, rec).Detail)
}

func TestNeedsReviewAndResolve(t *testing.T) {
	env := newTestEnv(t)
	env.store.PutJob(domain.Job{ID: "job-1"})
	env.do(t, http.MethodPost, "/thread", map[string]any{"threadId": "T1", "firstMessageId": "M0", "from": "a@b.com"})
	rec := env.do(t, http.MethodPost, "/event", map[string]any{
		"threadId": "T1", "messageId": "M1", "type": "CUSTOMER_INQUIRY",
		"confidence": 0.4, "source": "webhook", "needsReview": true,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	eventID := decodeBody[ledger.CreateResult](t, rec).Event.ID

	rec = env.do(t, http.MethodGet, "/needs-review?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	nr := decodeBody[needsReviewResponse](t, rec)
	assert.Len(t, nr.Events, 1)
	assert.Len(t, nr.OrphanThreads, 1)

	rec = env.do(t, http.MethodGet, "/needs-review?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "limit", decodeBody[ProblemDetail](t, rec).Field)

	rec = env.do(t, http.MethodPost, "/resolve-review", resolveRequest{EventID: eventID, JobID: "job-1", Note: "checked"})
	require.Equal(t, http.StatusOK, rec.Code)
	e := decodeBody[domain.Event](t, rec)
	assert.False(t, e.NeedsReview)
	assert.Equal(t, "job-1", e.JobID)

	rec = env.do(t, http.MethodPost, "/resolve-review", resolveRequest{EventID: "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestClassify(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/classify", classifyRequest{
		Subject: "Files for PO# 8812",
		Body:    "Grab them at https://www.dropbox.com/s/abc/art.pdf and https://evil.example/x",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	c := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "8812", c["poNumber"])
	assert.Equal(t, []any{"https://www.dropbox.com/s/abc/art.pdf"}, c["links"])

	rec = env.do(t, http.MethodPost, "/classify", classifyRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMatch_RequiresThread(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/match", map[string]any{"subject": "PO 1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "threadId", decodeBody[ProblemDetail](t, rec).Field)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, WithRateLimit(0.001, 1))

	rec := env.do(t, http.MethodPost, "/classify", classifyRequest{Subject: "PO 1"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/classify", classifyRequest{Subject: "PO 1"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestRecoverMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := recoverMiddleware(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
}
