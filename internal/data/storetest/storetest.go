// Package storetest holds a behavioural suite every core.JobRecordStore implementation must pass.
package storetest

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cutline/cutline-jobs/internal/core"
	"github.com/cutline/cutline-jobs/internal/domain/model"
	apperrors "github.com/cutline/cutline-jobs/internal/errors"
)

// Run exercises store against the record lifecycle contract.
func Run(t *testing.T, store core.JobRecordStore) {
	t.Helper()

	t.Run("create initialises queued record", func(t *testing.T) {
		ctx := context.Background()
		id := uuid.NewString()
		req := json.RawMessage(`{"mode":"edit","url":"https://example.com/a","music":"track-1"}`)

		rec, err := store.Create(ctx, id, req)
		require.NoError(t, err)
		assert.Equal(t, id, rec.JobID)
		assert.Equal(t, model.JobStatusQueued, rec.Status)
		require.Len(t, rec.History, 1)
		assert.Equal(t, model.JobStatusQueued, rec.History[0].Status)
		assert.Nil(t, rec.Error)
		assert.False(t, rec.HasResult())

		got, err := store.Get(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.JSONEq(t, string(req), string(got.Request))
		assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("create rejects duplicate id", func(t *testing.T) {
		ctx := context.Background()
		id := uuid.NewString()
		_, err := store.Create(ctx, id, nil)
		require.NoError(t, err)

		_, err = store.Create(ctx, id, nil)
		assert.True(t, apperrors.IsAlreadyExists(err), "got %v", err)
	})

	t.Run("get unknown returns nil", func(t *testing.T) {
		rec, err := store.Get(context.Background(), uuid.NewString())
		require.NoError(t, err)
		assert.Nil(t, rec)
	})

	t.Run("mutators report not found", func(t *testing.T) {
		ctx := context.Background()
		id := uuid.NewString()

		_, err := store.UpdateStatus(ctx, id, model.JobStatusAnalyzing, nil)
		assert.True(t, apperrors.IsNotFound(err), "update: %v", err)
		_, err = store.SetResult(ctx, id, map[string]string{"a": "b"})
		assert.True(t, apperrors.IsNotFound(err), "result: %v", err)
		_, err = store.SetError(ctx, id, "boom")
		assert.True(t, apperrors.IsNotFound(err), "error: %v", err)
	})

	t.Run("lifecycle appends history and enforces terminality", func(t *testing.T) {
		ctx := context.Background()
		id := uuid.NewString()
		_, err := store.Create(ctx, id, nil)
		require.NoError(t, err)

		_, err = store.UpdateStatus(ctx, id, model.JobStatusAnalyzing, "starting analysis")
		require.NoError(t, err)
		_, err = store.UpdateStatus(ctx, id, model.JobStatusRendering, map[string]any{"current": 1, "total": 1})
		require.NoError(t, err)

		result := map[string]any{"filename": "a_track-1.mp4", "video_url": "/videos/a_track-1.mp4"}
		_, err = store.SetResult(ctx, id, result)
		require.NoError(t, err)
		rec, err := store.UpdateStatus(ctx, id, model.JobStatusDone, nil)
		require.NoError(t, err)

		assert.Equal(t, model.JobStatusDone, rec.Status)
		require.Len(t, rec.History, 4)
		assert.Equal(t, []model.JobStatus{
			model.JobStatusQueued, model.JobStatusAnalyzing, model.JobStatusRendering, model.JobStatusDone,
		}, statuses(rec))

		_, err = store.UpdateStatus(ctx, id, model.JobStatusFailed, "late failure")
		assert.True(t, apperrors.IsInvalidTransition(err), "got %v", err)

		got, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusDone, got.Status)
		assert.Len(t, got.History, 4)

		var roundTrip map[string]any
		require.NoError(t, json.Unmarshal(got.Result, &roundTrip))
		assert.Equal(t, result, roundTrip)
	})

	t.Run("complete writes result and done together", func(t *testing.T) {
		ctx := context.Background()
		id := uuid.NewString()
		_, err := store.Complete(ctx, id, map[string]string{"filename": "x.mp4"}, nil)
		assert.True(t, apperrors.IsNotFound(err), "complete: %v", err)

		_, err = store.Create(ctx, id, nil)
		require.NoError(t, err)
		_, err = store.UpdateStatus(ctx, id, model.JobStatusRendering, "rendering")
		require.NoError(t, err)

		rec, err := store.Complete(ctx, id, map[string]string{"filename": "x.mp4"}, "edit complete")
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusDone, rec.Status)

		got, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusDone, got.Status)
		assert.JSONEq(t, `{"filename":"x.mp4"}`, string(got.Result))
		assert.Equal(t, []model.JobStatus{
			model.JobStatusQueued, model.JobStatusRendering, model.JobStatusDone,
		}, statuses(got))

		_, err = store.Complete(ctx, id, map[string]string{"filename": "again.mp4"}, nil)
		assert.True(t, apperrors.IsInvalidTransition(err), "got %v", err)
		got, err = store.Get(ctx, id)
		require.NoError(t, err)
		assert.JSONEq(t, `{"filename":"x.mp4"}`, string(got.Result))
	})

	t.Run("backward transition rejected", func(t *testing.T) {
		ctx := context.Background()
		id := uuid.NewString()
		_, err := store.Create(ctx, id, nil)
		require.NoError(t, err)
		_, err = store.UpdateStatus(ctx, id, model.JobStatusRendering, nil)
		require.NoError(t, err)

		_, err = store.UpdateStatus(ctx, id, model.JobStatusAnalyzing, nil)
		assert.True(t, apperrors.IsInvalidTransition(err), "got %v", err)
	})

	t.Run("set error then failed", func(t *testing.T) {
		ctx := context.Background()
		id := uuid.NewString()
		_, err := store.Create(ctx, id, nil)
		require.NoError(t, err)

		_, err = store.SetError(ctx, id, "music asset not found: nope")
		require.NoError(t, err)
		rec, err := store.UpdateStatus(ctx, id, model.JobStatusFailed, "music asset not found: nope")
		require.NoError(t, err)

		require.NotNil(t, rec.Error)
		assert.Equal(t, "music asset not found: nope", rec.Error.Message)
		assert.False(t, rec.Error.Timestamp.IsZero())
		assert.Equal(t, model.JobStatusFailed, rec.Status)
	})

	t.Run("concurrent updates never lose history", func(t *testing.T) {
		ctx := context.Background()
		id := uuid.NewString()
		_, err := store.Create(ctx, id, nil)
		require.NoError(t, err)
		_, err = store.UpdateStatus(ctx, id, model.JobStatusRendering, nil)
		require.NoError(t, err)

		const writers = 8
		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				_, uerr := store.UpdateStatus(ctx, id, model.JobStatusRendering, map[string]int{"current": n})
				assert.NoError(t, uerr)
			}(i)
		}
		wg.Wait()

		got, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Len(t, got.History, 2+writers)
	})
}

func statuses(rec *model.JobRecord) []model.JobStatus {
	out := make([]model.JobStatus, 0, len(rec.History))
	for _, h := range rec.History {
		out = append(out, h.Status)
	}
	return out
}
