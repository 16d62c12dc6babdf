package data

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cutline/cutline-jobs/internal/data/storetest"
	"github.com/cutline/cutline-jobs/internal/domain/model"
	apperrors "github.com/cutline/cutline-jobs/internal/errors"
)

func newTestFileStore(t *testing.T) (*FileJobStore, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "jobs")
	store, err := NewFileJobStore(FileJobStoreOptions{Dir: dir})
	require.NoError(t, err)
	return store, dir
}

func TestFileJobStore_Contract(t *testing.T) {
	store, _ := newTestFileStore(t)
	storetest.Run(t, store)
}

func TestNewFileJobStore_RequiresDir(t *testing.T) {
	_, err := NewFileJobStore(FileJobStoreOptions{})
	assert.Error(t, err)
}

func TestFileJobStore_WritesOneFilePerJob(t *testing.T) {
	store, dir := newTestFileStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "job-a", json.RawMessage(`{"url":"u"}`))
	require.NoError(t, err)
	_, err = store.UpdateStatus(ctx, "job-a", model.JobStatusAnalyzing, "starting analysis")
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files must be renamed away")
	assert.Equal(t, "job-a.json", entries[0].Name())

	raw, err := os.ReadFile(filepath.Join(dir, "job-a.json"))
	require.NoError(t, err)
	var onDisk model.JobRecord
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	assert.Equal(t, model.JobStatusAnalyzing, onDisk.Status)
	assert.Len(t, onDisk.History, 2)
}

func TestFileJobStore_CreateIsExclusiveAcrossStores(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "jobs")
	stores := make([]*FileJobStore, 2)
	for i := range stores {
		store, err := NewFileJobStore(FileJobStoreOptions{Dir: dir})
		require.NoError(t, err)
		stores[i] = store
	}

	const writers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
		errs    []error
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			request := json.RawMessage(fmt.Sprintf(`{"writer":%d}`, i))
			_, err := stores[i%len(stores)].Create(context.Background(), "job-x", request)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners = append(winners, string(request))
				return
			}
			errs = append(errs, err)
		}(i)
	}
	wg.Wait()

	require.Len(t, winners, 1)
	require.Len(t, errs, writers-1)
	for _, err := range errs {
		assert.True(t, apperrors.IsAlreadyExists(err), "got %v", err)
	}

	rec, err := stores[0].Get(context.Background(), "job-x")
	require.NoError(t, err)
	assert.JSONEq(t, winners[0], string(rec.Request))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "losing writers must not leave temp files behind")
}

func TestFileJobStore_UsesTimeProvider(t *testing.T) {
	clock := NewFixedTimeProvider(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	store, err := NewFileJobStore(FileJobStoreOptions{Dir: t.TempDir(), TimeProvider: clock})
	require.NoError(t, err)
	ctx := context.Background()

	rec, err := store.Create(ctx, "job-t", nil)
	require.NoError(t, err)
	assert.Equal(t, clock.Now(), rec.CreatedAt)

	clock.AddTime(90 * time.Second)
	rec, err = store.UpdateStatus(ctx, "job-t", model.JobStatusAnalyzing, nil)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, rec.History[1].Timestamp.Sub(rec.CreatedAt))
}

func TestFileJobStore_RejectsUnsafeIDs(t *testing.T) {
	store, _ := newTestFileStore(t)
	ctx := context.Background()

	for _, id := range []string{"", "../escape", "a/b", ".hidden", strings.Repeat("x", 200)} {
		_, err := store.Create(ctx, id, nil)
		assert.True(t, apperrors.IsValidation(err), "create %q: %v", id, err)

		rec, err := store.Get(ctx, id)
		assert.NoError(t, err)
		assert.Nil(t, rec)

		_, err = store.SetError(ctx, id, "x")
		assert.True(t, apperrors.IsNotFound(err), "set error %q: %v", id, err)
	}
}

func TestFileJobStore_CorruptRecord(t *testing.T) {
	store, dir := newTestFileStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "job-c.json"), []byte("{not json"), 0o600))

	_, err := store.Get(context.Background(), "job-c")
	assert.True(t, apperrors.IsInternal(err), "got %v", err)
}

func TestValidJobID(t *testing.T) {
	assert.True(t, ValidJobID("7f1c2a5e-3b9d-4a43-9c51-0d5f3e1a2b3c"))
	assert.True(t, ValidJobID("job_1"))
	assert.False(t, ValidJobID("job 1"))
	assert.False(t, ValidJobID("job.json"))
}
