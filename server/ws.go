package server

import (
	"net/http"
	"sync"

	"storycast/logger"
	"storycast/model"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// statusHub 按任务ID管理WebSocket订阅者，任务状态变化时推送
type statusHub struct {
	mu   sync.Mutex
	subs map[string]map[*websocket.Conn]bool
}

func newStatusHub() *statusHub {
	return &statusHub{subs: make(map[string]map[*websocket.Conn]bool)}
}

func (h *statusHub) subscribe(jobID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[jobID] == nil {
		h.subs[jobID] = make(map[*websocket.Conn]bool)
	}
	h.subs[jobID][conn] = true
}

func (h *statusHub) unsubscribe(jobID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[jobID], conn)
	if len(h.subs[jobID]) == 0 {
		delete(h.subs, jobID)
	}
}

// Broadcast 向任务的全部订阅者推送最新状态，
// 写失败的连接直接踢掉
func (h *statusHub) Broadcast(job *model.Job) {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.subs[job.ID]))
	for conn := range h.subs[job.ID] {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	payload := jobResponse(job)
	for _, conn := range conns {
		if err := conn.WriteJSON(payload); err != nil {
			logger.Debug("WebSocket推送失败，断开连接", logger.ErrorField(err))
			h.unsubscribe(job.ID, conn)
			conn.Close()
		}
	}
}

// handleJobStream 任务状态的WebSocket流。连上先推一次当前状态，
// 之后跟随流水线的状态变化推送。
func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]

	job, err := s.queue.GetJob(r.Context(), jobID)
	if err != nil || job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("WebSocket升级失败", logger.ErrorField(err))
		return
	}

	if err := conn.WriteJSON(jobResponse(job)); err != nil {
		conn.Close()
		return
	}

	// 终态任务推完即关，不留空连接
	if job.Status.Terminal() {
		conn.Close()
		return
	}

	s.hub.subscribe(jobID, conn)
	defer func() {
		s.hub.unsubscribe(jobID, conn)
		conn.Close()
	}()

	// 读循环只为感知客户端断开
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
