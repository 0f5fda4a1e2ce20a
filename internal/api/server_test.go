package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/config"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/models"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/normalize"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/queue"
)

type denyAll struct{ err error }

func (d denyAll) Allow(context.Context, string) (bool, float64, error) { return false, 0, d.err }

type fakeAudit map[string][]models.AuditLog

func (f fakeAudit) ListAudit(_ context.Context, jobID string) ([]models.AuditLog, error) {
	return f[jobID], nil
}

type fakeDLQ []models.Job

func (f fakeDLQ) DLQPeek(context.Context, int64) ([]models.Job, error) { return f, nil }

type fakeProperties struct {
	gotState, gotType string
	gotLimit          int
}

func (f *fakeProperties) ListProperties(_ context.Context, city, state, propertyType string, limit int) ([]models.NormalizedProperty, error) {
	f.gotState, f.gotType, f.gotLimit = state, propertyType, limit
	return []models.NormalizedProperty{{ID: "p1", City: city, State: state}}, nil
}

func newTestServer(t *testing.T, deps Deps) (*httptest.Server, *queue.Queue) {
	t.Helper()
	n := 0
	q := queue.New(queue.Options{NewID: func() string {
		n++
		return fmt.Sprintf("job-%d", n)
	}})
	deps.Queue = q
	if deps.Normalizer == nil {
		deps.Normalizer = normalize.New(normalize.Options{})
	}
	srv := httptest.NewServer(New(config.Default(), deps).Router())
	t.Cleanup(srv.Close)
	return srv, q
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, Deps{})
	resp, body := doJSON(t, http.MethodGet, srv.URL+"/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestEnqueue(t *testing.T) {
	srv, q := newTestServer(t, Deps{})

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/jobs", map[string]any{
		"type":     "scraping",
		"priority": 1,
		"payload":  map[string]any{"sources": []string{"loopnet"}},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "job-1", body["job_id"])

	job, ok := q.GetJob("job-1")
	require.True(t, ok)
	assert.Equal(t, models.StatusPending, job.Status)
	assert.Equal(t, 1, job.Priority)
	assert.Equal(t, queue.DefaultMaxAttempts, job.MaxAttempts)
}

func TestEnqueueValidation(t *testing.T) {
	srv, q := newTestServer(t, Deps{})

	cases := map[string]any{
		"bad json":      "{",
		"missing type":  map[string]any{"payload": map[string]any{}},
		"unknown type":  map[string]any{"type": "resize_image"},
		"zero priority": map[string]any{"type": "tax_lookup", "priority": 0},
		"low priority":  map[string]any{"type": "tax_lookup", "priority": 6},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			resp, out := doJSON(t, http.MethodPost, srv.URL+"/jobs", body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.NotEmpty(t, out["error"])
		})
	}
	assert.Empty(t, q.GetAllJobs())
}

func TestEnqueueRateLimited(t *testing.T) {
	srv, q := newTestServer(t, Deps{Limiter: denyAll{}})
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/jobs", map[string]any{"type": "tax_lookup"})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	srv2, _ := newTestServer(t, Deps{Limiter: denyAll{err: errors.New("redis down")}})
	resp, _ = doJSON(t, http.MethodPost, srv2.URL+"/jobs", map[string]any{"type": "tax_lookup"})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Empty(t, q.GetAllJobs())
}

func TestEnqueueAfterShutdown(t *testing.T) {
	srv, q := newTestServer(t, Deps{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, q.Run(ctx), context.Canceled)

	resp, out := doJSON(t, http.MethodPost, srv.URL+"/jobs", map[string]any{"type": "tax_lookup"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, queue.ErrQueueClosed.Error(), out["error"])
	assert.Empty(t, q.GetAllJobs())
}

func TestJobInspection(t *testing.T) {
	srv, q := newTestServer(t, Deps{})
	_, err := q.AddJob(models.JobTypeTaxLookup, nil)
	require.NoError(t, err)
	_, err = q.AddJob(models.JobTypeMarketAnalysis, nil)
	require.NoError(t, err)
	require.True(t, q.CancelJob("job-2"))

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/jobs", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 2, body["count"])

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/jobs?status=failed", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["count"])

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/jobs?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/jobs/job-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "tax_lookup", body["type"])

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/jobs/job-2/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "failed", body["status"])
	assert.Equal(t, queue.CancelledMessage, body["error_message"])

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/jobs/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["pending"])
	assert.EqualValues(t, 1, body["failed"])
	assert.EqualValues(t, 2, body["total"])
}

func TestCancel(t *testing.T) {
	srv, q := newTestServer(t, Deps{})
	_, err := q.AddJob(models.JobTypeScraping, nil)
	require.NoError(t, err)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/jobs/job-1/cancel", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "cancelled", body["status"])

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/jobs/job-1/cancel", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/jobs/job-9/cancel", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBatch(t *testing.T) {
	srv, _ := newTestServer(t, Deps{})
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/batches", map[string]any{
		"records": []map[string]any{
			{"id": "a", "source": "mls", "address": "100 Main Street", "city": "Atlanta", "state": "GA", "zip_code": "30303", "property_type": "office", "listing_price": 1_000_000, "sqft": 10_000},
			{"id": "b", "source": "zillow", "address": "100 Main St.", "city": "Atlanta", "state": "Georgia", "zip_code": "30303", "property_type": "Office", "listing_price": 1_000_000, "sqft": 10_000},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats := body["statistics"].(map[string]any)
	assert.EqualValues(t, 2, stats["total_input"])
	assert.EqualValues(t, 1, stats["duplicates_found"])
	assert.EqualValues(t, 1, stats["final_count"])

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/batches", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOptionalCollaborators(t *testing.T) {
	srv, q := newTestServer(t, Deps{})
	_, err := q.AddJob(models.JobTypeScraping, nil)
	require.NoError(t, err)

	for _, path := range []string{"/dlq", "/jobs/job-1/audit", "/properties?city=Atlanta&state=GA", "/ws/jobs/job-1"} {
		resp, _ := doJSON(t, http.MethodGet, srv.URL+path, nil)
		assert.Equal(t, http.StatusNotImplemented, resp.StatusCode, path)
	}
}

func TestDLQAndAudit(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	srv, _ := newTestServer(t, Deps{
		DLQ:   fakeDLQ{{ID: "dead-1", Type: models.JobTypeScraping, Status: models.StatusFailed}},
		Audit: fakeAudit{"job-1": {{JobID: "job-1", Event: queue.EventEnqueued, Recorded: at}}},
	})

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/dlq", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	items := body["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "dead-1", items[0].(map[string]any)["id"])

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/jobs/job-1/audit", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["items"], 1)

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/jobs/job-7/audit", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestProperties(t *testing.T) {
	props := &fakeProperties{}
	srv, _ := newTestServer(t, Deps{Properties: props})

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/properties?city=Atlanta&state=Georgia&property_type=Warehouse&limit=9000", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["count"])
	assert.Equal(t, "GA", props.gotState)
	assert.Equal(t, "industrial", props.gotType)
	assert.Equal(t, maxPropertyLimit, props.gotLimit)

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/properties?city=Atlanta", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/properties?city=Atlanta&state=GA&limit=-2", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
