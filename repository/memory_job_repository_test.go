package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"storycast/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJob(id string) *model.Job {
	return &model.Job{
		ID:        id,
		Key:       model.GenerationKey{Language: "de", World: "w1", OwnerID: "fam-1", Variant: "kids"},
		Status:    model.JobStatusPending,
		Segments:  []model.Segment{{Kind: model.SegmentSilence}},
		FileCount: 1,
		CreatedAt: time.Now(),
	}
}

func TestMemoryRepoLifecycle(t *testing.T) {
	repo := NewMemoryJobRepository()
	ctx := context.Background()

	require.NoError(t, repo.CreateJob(ctx, newJob("j1")))

	job, err := repo.GetJob(ctx, "j1")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, model.JobStatusPending, job.Status)

	claimed, err := repo.ClaimJob(ctx, "j1")
	require.NoError(t, err)
	assert.True(t, claimed)

	job, _ = repo.GetJob(ctx, "j1")
	assert.Equal(t, model.JobStatusProcessing, job.Status)
	assert.NotNil(t, job.StartedAt)

	job.ProgramURL = "http://media.local/p.mp3?v=1"
	job.Manifest = &model.ProgramManifest{RecordingCount: 2}
	require.NoError(t, repo.CompleteJob(ctx, job))

	job, _ = repo.GetJob(ctx, "j1")
	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Equal(t, "http://media.local/p.mp3?v=1", job.ProgramURL)
	assert.NotNil(t, job.CompletedAt)
}

func TestMemoryRepoClaimOnlyOnce(t *testing.T) {
	repo := NewMemoryJobRepository()
	ctx := context.Background()
	require.NoError(t, repo.CreateJob(ctx, newJob("j1")))

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := repo.ClaimJob(ctx, "j1"); ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
}

func TestMemoryRepoClaimUnknownOrTerminal(t *testing.T) {
	repo := NewMemoryJobRepository()
	ctx := context.Background()

	claimed, err := repo.ClaimJob(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, claimed)

	require.NoError(t, repo.CreateJob(ctx, newJob("j1")))
	require.NoError(t, repo.FailJob(ctx, "j1", "boom"))

	claimed, err = repo.ClaimJob(ctx, "j1")
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestMemoryRepoFindActiveJob(t *testing.T) {
	repo := NewMemoryJobRepository()
	ctx := context.Background()

	job := newJob("j1")
	require.NoError(t, repo.CreateJob(ctx, job))

	active, err := repo.FindActiveJob(ctx, job.Key)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "j1", active.ID)

	otherKey := job.Key
	otherKey.Variant = "parent"
	active, err = repo.FindActiveJob(ctx, otherKey)
	require.NoError(t, err)
	assert.Nil(t, active)

	require.NoError(t, repo.FailJob(ctx, "j1", "boom"))
	active, err = repo.FindActiveJob(ctx, job.Key)
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestMemoryRepoListPending(t *testing.T) {
	repo := NewMemoryJobRepository()
	ctx := context.Background()

	require.NoError(t, repo.CreateJob(ctx, newJob("j1")))
	require.NoError(t, repo.CreateJob(ctx, newJob("j2")))
	_, err := repo.ClaimJob(ctx, "j2")
	require.NoError(t, err)

	pending, err := repo.ListPendingJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "j1", pending[0].ID)
}
