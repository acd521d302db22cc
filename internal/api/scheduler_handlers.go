package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vasilistotskas/weblens-sub000/internal/monitor"
	"github.com/vasilistotskas/weblens-sub000/internal/webintel"
)

type scheduleRequest struct {
	MonitorID     string `json:"monitor_id"`
	IntervalHours int    `json:"interval_hours"`
}

func (s *Server) scheduleMonitor(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidRequest, "invalid JSON body")
		return
	}
	if req.MonitorID == "" {
		writeError(w, r, http.StatusBadRequest, codeInvalidRequest, "monitor_id is required")
		return
	}
	if _, err := s.monitors.Get(r.Context(), req.MonitorID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := s.scheduler.Schedule(r.Context(), req.MonitorID, req.IntervalHours); err != nil {
		writeSchedulerError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "scheduled", "monitor_id": req.MonitorID})
}

type cancelRequest struct {
	MonitorID string `json:"monitor_id"`
}

func (s *Server) cancelMonitor(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidRequest, "invalid JSON body")
		return
	}
	if req.MonitorID == "" {
		writeError(w, r, http.StatusBadRequest, codeInvalidRequest, "monitor_id is required")
		return
	}
	if err := s.scheduler.Cancel(r.Context(), req.MonitorID); err != nil {
		writeSchedulerError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "cancelled", "monitor_id": req.MonitorID})
}

func writeSchedulerError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, monitor.ErrSchedulerClosed) {
		writeError(w, r, http.StatusServiceUnavailable, webintel.CodeServiceUnavailable, err.Error())
		return
	}
	writeDomainError(w, r, err)
}
