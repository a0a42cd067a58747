package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storycast/core/program"
	"storycast/core/queue"
	"storycast/model"
	"storycast/repository"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// idleRunner 从不认领任务，保持pending便于断言
type idleRunner struct{}

func (idleRunner) Run(_ context.Context, _ *model.Job) error { return nil }

func newTestServer(t *testing.T) (*Server, *repository.MemoryJobRepository) {
	t.Helper()
	repo := repository.NewMemoryJobRepository()
	lock := program.NewGenerationLock()

	s := &Server{
		router: mux.NewRouter(),
		lock:   lock,
		hub:    newStatusHub(),
		queue:  queue.New(repo, lock, idleRunner{}, 1, time.Hour),
		stop:   make(chan struct{}),
	}
	s.setupRoutes()
	return s, repo
}

func createJobBody() []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"world":    "w1",
		"ownerId":  "fam-1",
		"language": "de",
		"variant":  "kids",
		"segments": []map[string]interface{}{
			{"kind": "single", "sourceUrl": "assets/prompts/q1.mp3"},
			{"kind": "silence", "durationSeconds": 2},
		},
	})
	return body
}

func doRequest(s *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestCreateJobEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(s, "POST", "/api/jobs", createJobBody())
	assert.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["jobId"])
	assert.Equal(t, "pending", resp["status"])
}

func TestCreateJobRejectsBadBody(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(s, "POST", "/api/jobs", []byte("{not json"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateJobRejectsEmptySegments(t *testing.T) {
	s, _ := newTestServer(t)

	body, _ := json.Marshal(map[string]interface{}{
		"world": "w1", "ownerId": "fam-1", "language": "de", "variant": "kids",
		"segments": []interface{}{},
	})
	rec := doRequest(s, "POST", "/api/jobs", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateJobConflictWhenLockHeld(t *testing.T) {
	s, _ := newTestServer(t)

	key := model.GenerationKey{Language: "de", World: "w1", OwnerID: "fam-1", Variant: "kids"}
	require.True(t, s.lock.Acquire(key, "in-flight"))

	rec := doRequest(s, "POST", "/api/jobs", createJobBody())
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateJobConflictReturnsExistingJob(t *testing.T) {
	s, _ := newTestServer(t)

	first := doRequest(s, "POST", "/api/jobs", createJobBody())
	require.Equal(t, http.StatusAccepted, first.Code)
	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &created))

	second := doRequest(s, "POST", "/api/jobs", createJobBody())
	assert.Equal(t, http.StatusConflict, second.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &resp))
	assert.Equal(t, created["jobId"], resp["jobId"])
}

func TestGetJobEndpoint(t *testing.T) {
	s, repo := newTestServer(t)

	now := time.Now()
	completed := now.Add(time.Minute)
	job := &model.Job{
		ID:  "job-42",
		Key: model.GenerationKey{Language: "de", World: "w1", OwnerID: "fam-1", Variant: "kids"},
		Status: model.JobStatusCompleted, Segments: []model.Segment{{Kind: model.SegmentSilence}},
		FileCount: 1, ProgramURL: "http://media.local/p.mp3?v=1",
		Manifest:  &model.ProgramManifest{RecordingCount: 2, Version: model.ManifestVersion},
		CreatedAt: now, StartedAt: &now, CompletedAt: &completed,
	}
	require.NoError(t, repo.CreateJob(context.Background(), job))

	rec := doRequest(s, "GET", "/api/jobs/job-42", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "completed", resp["status"])
	assert.Equal(t, "http://media.local/p.mp3?v=1", resp["programUrl"])
	assert.NotNil(t, resp["manifest"])
	assert.NotEmpty(t, resp["completedAt"])
}

func TestGetJobNotFound(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(s, "GET", "/api/jobs/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLockProbeEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	query := "world=w1&ownerId=fam-1&language=de&variant=kids"
	rec := doRequest(s, "GET", "/api/locks?"+query, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["held"])

	key := model.GenerationKey{Language: "de", World: "w1", OwnerID: "fam-1", Variant: "kids"}
	require.True(t, s.lock.Acquire(key, "job-7"))

	rec = doRequest(s, "GET", "/api/locks?"+query, nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["held"])
	assert.Equal(t, "job-7", resp["jobId"])
}

func TestLockProbeRequiresFullKey(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(s, "GET", "/api/locks?world=w1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFailedJobResponseShape(t *testing.T) {
	s, repo := newTestServer(t)

	job := &model.Job{
		ID:  "job-err",
		Key: model.GenerationKey{Language: "de", World: "w1", OwnerID: "fam-1", Variant: "kids"},
		Status: model.JobStatusFailed, Segments: []model.Segment{{Kind: model.SegmentSilence}},
		ErrorMessage: "assembly timed out", CreatedAt: time.Now(),
	}
	require.NoError(t, repo.CreateJob(context.Background(), job))

	rec := doRequest(s, "GET", "/api/jobs/job-err", nil)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "failed", resp["status"])
	assert.Equal(t, "assembly timed out", resp["errorMessage"])
	_, hasURL := resp["programUrl"]
	assert.False(t, hasURL)
}
