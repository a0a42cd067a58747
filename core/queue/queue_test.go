package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"storycast/core/program"
	"storycast/model"
	"storycast/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner 只认领任务并记录被叫到的次数
type fakeRunner struct {
	mu   sync.Mutex
	jobs repository.JobRepository
	runs []string
	done chan string
}

func newFakeRunner(jobs repository.JobRepository) *fakeRunner {
	return &fakeRunner{jobs: jobs, done: make(chan string, 16)}
}

func (r *fakeRunner) Run(ctx context.Context, job *model.Job) error {
	claimed, err := r.jobs.ClaimJob(ctx, job.ID)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}
	r.mu.Lock()
	r.runs = append(r.runs, job.ID)
	r.mu.Unlock()
	r.done <- job.ID
	return nil
}

func testKey() model.GenerationKey {
	return model.GenerationKey{Language: "de", World: "w1", OwnerID: "fam-1", Variant: "kids"}
}

func validSegments() []model.Segment {
	return []model.Segment{
		{Kind: model.SegmentSingle, SourceURL: "assets/prompts/q1.mp3"},
		{Kind: model.SegmentSilence, DurationSeconds: 2},
	}
}

func newTestQueue(t *testing.T) (*Queue, *repository.MemoryJobRepository, *fakeRunner, *program.GenerationLock) {
	t.Helper()
	repo := repository.NewMemoryJobRepository()
	runner := newFakeRunner(repo)
	lock := program.NewGenerationLock()
	q := New(repo, lock, runner, 1, time.Hour)
	return q, repo, runner, lock
}

func TestCreateJobPersistsAndDispatches(t *testing.T) {
	q, repo, runner, _ := newTestQueue(t)

	job, err := q.CreateJob(context.Background(), testKey(), validSegments())
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, model.JobStatusPending, job.Status)
	assert.Equal(t, 2, job.FileCount)

	select {
	case id := <-runner.done:
		assert.Equal(t, job.ID, id)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch never reached the runner")
	}

	stored, err := repo.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
}

func TestCreateJobRejectsEmptySegments(t *testing.T) {
	q, _, _, _ := newTestQueue(t)

	_, err := q.CreateJob(context.Background(), testKey(), nil)
	assert.Error(t, err)
}

func TestCreateJobRejectsMalformedSegment(t *testing.T) {
	q, _, _, _ := newTestQueue(t)

	_, err := q.CreateJob(context.Background(), testKey(), []model.Segment{
		{Kind: model.SegmentSingle}, // 缺sourceUrl
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "sourceUrl")
}

func TestCreateJobRejectsIncompleteKey(t *testing.T) {
	q, _, _, _ := newTestQueue(t)

	key := testKey()
	key.OwnerID = ""
	_, err := q.CreateJob(context.Background(), key, validSegments())
	assert.Error(t, err)
}

func TestCreateJobBusyWhenLockHeld(t *testing.T) {
	q, _, _, lock := newTestQueue(t)

	require.True(t, lock.Acquire(testKey(), "in-flight"))
	_, err := q.CreateJob(context.Background(), testKey(), validSegments())
	assert.ErrorIs(t, err, ErrBusy)
}

func TestCreateJobBusyWhenActiveJobExists(t *testing.T) {
	repo := repository.NewMemoryJobRepository()
	lock := program.NewGenerationLock()
	// runner永远不认领，第一个任务一直pending
	q := New(repo, lock, &fakeRunner{jobs: repository.NewMemoryJobRepository(), done: make(chan string, 1)}, 1, time.Hour)

	first, err := q.CreateJob(context.Background(), testKey(), validSegments())
	require.NoError(t, err)

	second, err := q.CreateJob(context.Background(), testKey(), validSegments())
	assert.ErrorIs(t, err, ErrBusy)
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)
}

func TestSweepPicksUpPendingJobs(t *testing.T) {
	q, repo, runner, _ := newTestQueue(t)

	job := &model.Job{
		ID:        "orphan-1",
		Key:       testKey(),
		Status:    model.JobStatusPending,
		Segments:  validSegments(),
		FileCount: 2,
		CreatedAt: time.Now(),
	}
	require.NoError(t, repo.CreateJob(context.Background(), job))

	q.sweep()

	select {
	case id := <-runner.done:
		assert.Equal(t, "orphan-1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("sweep never dispatched the pending job")
	}
}

func TestDispatchAndSweepNeverDoubleProcess(t *testing.T) {
	q, repo, runner, _ := newTestQueue(t)

	job, err := q.CreateJob(context.Background(), testKey(), validSegments())
	require.NoError(t, err)

	// 扫描和立即派发赛跑，认领保证只处理一次
	q.sweep()
	q.sweep()

	<-runner.done
	time.Sleep(100 * time.Millisecond)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Equal(t, []string{job.ID}, runner.runs)

	stored, err := repo.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusProcessing, stored.Status)
}
