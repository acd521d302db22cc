package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/vasilistotskas/weblens-sub000/internal/monitor"
	"github.com/vasilistotskas/weblens-sub000/internal/webintel"
)

type createMonitorRequest struct {
	URL                string `json:"url"`
	WebhookURL         string `json:"webhook_url"`
	CheckIntervalHours int    `json:"check_interval_hours"`
	NotifyOn           string `json:"notify_on,omitempty"`
	OwnerID            string `json:"owner_id"`
}

func (s *Server) createMonitor(w http.ResponseWriter, r *http.Request) {
	var req createMonitorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidRequest, "invalid JSON body")
		return
	}

	def, err := s.monitors.Create(r.Context(), monitor.CreateParams{
		URL:                req.URL,
		WebhookURL:         req.WebhookURL,
		CheckIntervalHours: req.CheckIntervalHours,
		NotifyOn:           webintel.NotifyFilter(req.NotifyOn),
		OwnerID:            req.OwnerID,
	})
	if err != nil {
		if errors.Is(err, monitor.ErrInvalidURL) {
			writeError(w, r, http.StatusBadRequest, codeInvalidRequest, err.Error())
			return
		}
		writeDomainError(w, r, err)
		return
	}

	if err := s.scheduler.Schedule(r.Context(), def.ID, def.CheckIntervalHours); err != nil {
		// The record exists; scheduling will be retried on restart when
		// active monitors are reloaded.
		s.logger.Warn("schedule on create failed", zap.String("monitor_id", def.ID), zap.Error(err))
	}
	writeJSON(w, r, http.StatusCreated, def)
}

func (s *Server) getMonitor(w http.ResponseWriter, r *http.Request) {
	def, err := s.monitors.Get(r.Context(), chi.URLParam(r, "monitor_id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, def)
}

func (s *Server) deleteMonitor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "monitor_id")
	if err := s.monitors.Delete(r.Context(), id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := s.scheduler.Cancel(r.Context(), id); err != nil {
		s.logger.Warn("cancel on delete failed", zap.String("monitor_id", id), zap.Error(err))
	}
	w.WriteHeader(http.StatusNoContent)
}

type listMonitorsResponse struct {
	Owner    string                       `json:"owner"`
	Monitors []webintel.MonitorDefinition `json:"monitors"`
}

func (s *Server) listMonitors(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		writeError(w, r, http.StatusBadRequest, codeInvalidRequest, "owner query parameter is required")
		return
	}
	defs, err := s.monitors.ListByOwner(r.Context(), owner)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if defs == nil {
		defs = []webintel.MonitorDefinition{}
	}
	writeJSON(w, r, http.StatusOK, listMonitorsResponse{Owner: owner, Monitors: defs})
}

type checkMonitorResponse struct {
	Monitor    webintel.MonitorDefinition `json:"monitor"`
	ChangeType string                     `json:"change_type"`
	Changed    bool                       `json:"changed"`
	Notified   bool                       `json:"notified"`
	Billed     bool                       `json:"billed"`
}

// checkMonitor runs a check immediately, outside the timer cadence. A
// successful run bills and reschedules exactly like a timed one, and
// reactivates a monitor that was disabled by its failure streak.
func (s *Server) checkMonitor(w http.ResponseWriter, r *http.Request) {
	def, err := s.monitors.Get(r.Context(), chi.URLParam(r, "monitor_id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	outcome, err := s.checker.Check(r.Context(), def)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if outcome.Monitor.Status == webintel.MonitorActive {
		if err := s.scheduler.Schedule(r.Context(), outcome.Monitor.ID, outcome.Monitor.CheckIntervalHours); err != nil {
			s.logger.Warn("reschedule after manual check failed", zap.String("monitor_id", outcome.Monitor.ID), zap.Error(err))
		}
	}
	writeJSON(w, r, http.StatusOK, checkMonitorResponse{
		Monitor:    outcome.Monitor,
		ChangeType: string(outcome.ChangeType),
		Changed:    outcome.Changed,
		Notified:   outcome.Notified,
		Billed:     outcome.Billed,
	})
}
