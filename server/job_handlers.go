package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"storycast/core/queue"
	"storycast/model"

	"github.com/gorilla/mux"
)

// createJobRequest 生成请求体
type createJobRequest struct {
	World    string          `json:"world"`
	OwnerID  string          `json:"ownerId"`
	Language string          `json:"language"`
	Variant  string          `json:"variant"`
	Segments []model.Segment `json:"segments"`
}

func (r *createJobRequest) key() model.GenerationKey {
	return model.GenerationKey{
		World:    r.World,
		OwnerID:  r.OwnerID,
		Language: r.Language,
		Variant:  r.Variant,
	}
}

// handleCreateJob 接受生成请求，校验后立刻返回任务ID。
// 同一生成键已有任务在跑时返回409。
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	job, err := s.queue.CreateJob(r.Context(), req.key(), req.Segments)
	if errors.Is(err, queue.ErrBusy) {
		resp := map[string]interface{}{"error": "a generation is already in progress"}
		if job != nil {
			resp["jobId"] = job.ID
			resp["status"] = job.Status
		}
		writeJSON(w, http.StatusConflict, resp)
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"jobId":  job.ID,
		"status": job.Status,
	})
}

// handleGetJob 任务状态轮询
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]

	job, err := s.queue.GetJob(r.Context(), jobID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	if job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	writeJSON(w, http.StatusOK, jobResponse(job))
}

// handleLockProbe 只读锁探测，调用方可在建任务前短路"正在生成中"
func (s *Server) handleLockProbe(w http.ResponseWriter, r *http.Request) {
	key, ok := keyFromQuery(w, r)
	if !ok {
		return
	}

	held := s.lock.IsHeld(key)
	resp := map[string]interface{}{"key": key.String(), "held": held}
	if held {
		resp["jobId"] = s.lock.HolderJobID(key)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGenerationCheck 幂等决策接口：录音集合没变就不用重新生成
func (s *Server) handleGenerationCheck(w http.ResponseWriter, r *http.Request) {
	key, ok := keyFromQuery(w, r)
	if !ok {
		return
	}

	decision, err := s.checker.Check(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "generation check failed")
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

func keyFromQuery(w http.ResponseWriter, r *http.Request) (model.GenerationKey, bool) {
	q := r.URL.Query()
	key := model.GenerationKey{
		World:    q.Get("world"),
		OwnerID:  q.Get("ownerId"),
		Language: q.Get("language"),
		Variant:  q.Get("variant"),
	}
	if err := key.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return key, false
	}
	return key, true
}

// jobResponse 对外的任务视图
func jobResponse(job *model.Job) map[string]interface{} {
	resp := map[string]interface{}{
		"jobId":     job.ID,
		"status":    job.Status,
		"fileCount": job.FileCount,
		"createdAt": job.CreatedAt,
	}
	if job.StartedAt != nil {
		resp["startedAt"] = job.StartedAt
	}
	if job.CompletedAt != nil {
		resp["completedAt"] = job.CompletedAt
	}
	if job.Status == model.JobStatusCompleted {
		resp["programUrl"] = job.ProgramURL
		resp["manifest"] = job.Manifest
	}
	if job.Status == model.JobStatusFailed {
		resp["errorMessage"] = job.ErrorMessage
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{"error": msg})
}
