package webhook

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cutline/cutline-jobs/internal/observability/notify"
)

func samplePayload() notify.JobFailurePayload {
	return notify.JobFailurePayload{
		JobID:      "job-1",
		Kind:       "clip_render",
		Mode:       "async",
		Error:      "render produced no output",
		ErrorClass: "external_failure",
		Severity:   notify.SeverityCritical,
		OccurredAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)

	_, err = NewClient(Config{URL: "http://example.com", BodyExpr: "{bad"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid webhook body expression")
}

func TestBodyWithoutExpression(t *testing.T) {
	c, err := NewClient(Config{URL: "http://example.com"})
	require.NoError(t, err)

	body, err := c.body(samplePayload())
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"job_id": "job-1",
		"kind": "clip_render",
		"mode": "async",
		"error": "render produced no output",
		"error_class": "external_failure",
		"severity": "critical",
		"occurred_at": "2026-03-01T00:00:00Z"
	}`, string(body))
}

func TestBodyWithExpression(t *testing.T) {
	c, err := NewClient(Config{
		URL:      "http://example.com",
		BodyExpr: "{summary: join(' ', [kind, error]), id: job_id}",
	})
	require.NoError(t, err)

	body, err := c.body(samplePayload())
	require.NoError(t, err)
	assert.JSONEq(t, `{"summary":"clip_render render produced no output","id":"job-1"}`, string(body))
}

func TestSendJobFailure(t *testing.T) {
	got := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer t", r.Header.Get("Authorization"))
		b, _ := io.ReadAll(r.Body)
		got <- string(b)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c, err := NewClient(Config{
		URL:      srv.URL,
		BodyExpr: "job_id",
		Headers:  map[string]string{"Authorization": "Bearer t"},
		Client:   srv.Client(),
	})
	require.NoError(t, err)

	require.NoError(t, c.SendJobFailure(context.Background(), samplePayload()))
	assert.JSONEq(t, `"job-1"`, <-got)
}
