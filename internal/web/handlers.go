package web

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/pocketomega/codex-core/internal/metrics"
	"github.com/pocketomega/codex-core/internal/session"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req session.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.WorkspacePath == "" {
		writeError(w, http.StatusBadRequest, "workspacePath is required")
		return
	}
	rt, err := s.Factory.New(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.Store.Create(rt)
	log.Printf("[Server] created session %s (provider=%s model=%s)", rt.Info.ID, rt.Info.ProviderName, rt.Info.Model)
	writeJSON(w, http.StatusOK, map[string]string{"sessionId": rt.Info.ID})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rt, ok := s.Store.TryGet(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	writeJSON(w, http.StatusOK, rt.Info)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req session.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.WorkspacePath == "" {
		writeError(w, http.StatusBadRequest, "workspacePath is required")
		return
	}
	rt, err := s.Factory.Resume(id, req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.Store.Create(rt)
	log.Printf("[Server] resumed session %s", id)
	writeJSON(w, http.StatusOK, map[string]string{"sessionId": rt.Info.ID})
}

type chatRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rt, ok := s.Store.TryGet(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	go func() {
		// The runner's own context is independent of this request's; the
		// chat endpoint only dispatches, it never blocks on completion.
		ctx := context.Background()
		defer func() {
			if p := recover(); p != nil {
				log.Printf("[Server] session %s runner panic: %v", id, p)
			}
		}()
		report := rt.Run(ctx, req.Message)
		log.Printf("[Server] session %s turn finished: %s", id, report)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

type approvalRequest struct {
	Approved bool `json:"approved"`
}

func (s *Server) handleApproval(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	callID := r.PathValue("callId")
	rt, ok := s.Store.TryGet(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	var req approvalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	elapsed, ok := rt.Approver.TryResolveTimed(callID, req.Approved)
	if !ok {
		writeError(w, http.StatusNotFound, "no pending approval for that call id")
		return
	}
	metrics.ApprovalLatency.Observe(elapsed.Seconds())
	writeJSON(w, http.StatusOK, map[string]bool{"resolved": true})
}
