package server

import (
	"net/http"
	"strconv"
	"time"

	"storycast/db"
)

const defaultRunHistoryLimit = 20

// handleRecentRuns 查询某个所有者最近的生成历史，排障用
func (s *Server) handleRecentRuns(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("ownerId")
	if ownerID == "" {
		writeError(w, http.StatusBadRequest, "ownerId is required")
		return
	}

	limit := defaultRunHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	runs, err := s.runs.RecentRuns(r.Context(), ownerID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load run history")
		return
	}

	out := make([]map[string]interface{}, 0, len(runs))
	for _, run := range runs {
		out = append(out, runResponse(run))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": out})
}

func runResponse(run db.ProgramRun) map[string]interface{} {
	resp := map[string]interface{}{
		"jobId":          run.JobID,
		"world":          run.World,
		"ownerId":        run.OwnerID,
		"language":       run.Language,
		"variant":        run.Variant,
		"succeeded":      run.Succeeded,
		"degraded":       run.Degraded,
		"segmentCount":   run.SegmentCount,
		"recordingCount": run.RecordingCount,
		"durationMs":     run.DurationMs,
		"createdAt":      run.CreatedAt.Format(time.RFC3339),
	}
	if run.Succeeded {
		resp["targetLufs"] = run.TargetLUFS
		resp["programSecs"] = run.ProgramSecs
	}
	if run.FailReason != "" {
		resp["failReason"] = run.FailReason
	}
	return resp
}
