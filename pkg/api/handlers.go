package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"github.com/quantlink/spreadgrid/pkg/engine"
)

// jsonResponse 通用 JSON 响应
type jsonResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, resp jsonResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// snapshotOr 引擎尚未生成快照时直接回复
func (s *Server) snapshotOr(w http.ResponseWriter) *engine.Snapshot {
	snap := s.eng.Snapshot()
	if snap == nil {
		writeJSON(w, http.StatusOK, jsonResponse{Success: true, Message: "no snapshot yet"})
	}
	return snap
}

// GET /api/v1/health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ready := false
	if snap := s.eng.Snapshot(); snap != nil {
		ready = snap.Ready
	}
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, jsonResponse{
		Success: ready,
		Message: map[bool]string{true: "ok", false: "not ready"}[ready],
		Data: map[string]interface{}{
			"ws_clients": s.hub.ClientCount(),
		},
	})
}

// GET /api/v1/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if snap := s.snapshotOr(w); snap != nil {
		writeJSON(w, http.StatusOK, jsonResponse{Success: true, Data: snap})
	}
}

// GET /api/v1/spreads
func (s *Server) handleSpreads(w http.ResponseWriter, r *http.Request) {
	if snap := s.snapshotOr(w); snap != nil {
		writeJSON(w, http.StatusOK, jsonResponse{Success: true, Data: snap.Spreads})
	}
}

// GET /api/v1/legs
func (s *Server) handleLegs(w http.ResponseWriter, r *http.Request) {
	if snap := s.snapshotOr(w); snap != nil {
		writeJSON(w, http.StatusOK, jsonResponse{Success: true, Data: snap.Legs})
	}
}

// GET /api/v1/orders 在途订单 + 最近历史
func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	d := s.dashboard.Load()
	if d == nil {
		d = s.Refresh()
	}
	writeJSON(w, http.StatusOK, jsonResponse{Success: true, Data: d.History})
}

// POST /api/v1/command  body: {"id":1,"spread":0,"float":4}
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var cmd engine.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeJSON(w, http.StatusBadRequest, jsonResponse{Success: false, Message: "bad command: " + err.Error()})
		return
	}

	status, resp := s.runCommand(r.Context(), cmd)
	writeJSON(w, status, resp)
}

// runCommand 提交到引擎 goroutine 执行，HTTP 与 WebSocket 共用
func (s *Server) runCommand(parent context.Context, cmd engine.Command) (int, jsonResponse) {
	ctx, cancel := context.WithTimeout(parent, s.opts.CommandTimeout)
	defer cancel()
	msg, err := s.eng.Submit(ctx, cmd)
	switch {
	case err == nil:
		return http.StatusOK, jsonResponse{Success: true, Message: msg}
	case errors.Is(err, engine.ErrInvalidCommand), errors.Is(err, engine.ErrUnknownSpread):
		return http.StatusBadRequest, jsonResponse{Success: false, Message: err.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, jsonResponse{Success: false, Message: "engine busy"}
	default:
		return http.StatusInternalServerError, jsonResponse{Success: false, Message: err.Error()}
	}
}
