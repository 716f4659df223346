package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/samber/lo"

	"github.com/aschepis/backscratcher/claw/llm"
)

type healthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type toolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type infoResponse struct {
	Version   string     `json:"version"`
	Model     string     `json:"model"`
	StartedAt time.Time  `json:"started_at"`
	Uptime    string     `json:"uptime"`
	Tools     []toolInfo `json:"tools"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Health check failed")
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unhealthy", Error: err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	info := infoResponse{
		Version:   s.version,
		Model:     s.model,
		StartedAt: s.startedAt.UTC(),
		Uptime:    time.Since(s.startedAt).Round(time.Second).String(),
		Tools:     []toolInfo{},
	}
	if s.tools != nil {
		info.Tools = lo.Map(s.tools.Specs(), func(spec llm.ToolSpec, _ int) toolInfo {
			return toolInfo{Name: spec.Name, Description: spec.Description}
		})
	}
	writeJSON(w, http.StatusOK, info)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
