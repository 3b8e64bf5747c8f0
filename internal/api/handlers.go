package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/caseta-bridge/internal/accessory"
	"github.com/nerrad567/caseta-bridge/internal/discovery"
	"github.com/nerrad567/caseta-bridge/internal/platform"
	"github.com/nerrad567/caseta-bridge/internal/process"
)

// healthCheckTimeout bounds each dependency check run by /health.
const healthCheckTimeout = 2 * time.Second

type healthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Hubs    int               `json:"hubs"`
	Checks  map[string]string `json:"checks,omitempty"`
	Relay   *process.Stats    `json:"relay,omitempty"`
}

// handleHealth runs every registered check. Any failure reports 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Version: s.version,
		Hubs:    len(s.engine.Hubs()),
	}

	if len(s.checks) > 0 {
		resp.Checks = make(map[string]string, len(s.checks))
		for name, check := range s.checks {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			err := check(ctx)
			cancel()
			if err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				continue
			}
			resp.Checks[name] = "ok"
		}
	}
	if s.relayStats != nil {
		stats := s.relayStats()
		resp.Relay = &stats
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

type hubResponse struct {
	HubID       string           `json:"hub_id"`
	Accessories int              `json:"accessories"`
	LastReport  *platform.Report `json:"last_report,omitempty"`
}

func (s *Server) handleListHubs(w http.ResponseWriter, _ *http.Request) {
	ids := s.engine.Hubs()
	sort.Strings(ids)

	hubs := make([]hubResponse, 0, len(ids))
	for _, id := range ids {
		h := hubResponse{HubID: id, Accessories: len(s.accessories.ListByHub(id))}
		if report, ok := s.engine.LastReport(id); ok {
			h.LastReport = &report
		}
		hubs = append(hubs, h)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"hubs":  hubs,
		"count": len(hubs),
	})
}

// handleReconcile runs a pass for one hub and returns its report.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	hubID := discovery.NormalizeHubID(chi.URLParam(r, "hubID"))

	report, err := s.engine.Reconcile(r.Context(), hubID)
	switch {
	case errors.Is(err, platform.ErrUnknownHub):
		writeNotFound(w, "hub not connected: "+hubID)
	case errors.Is(err, platform.ErrDeviceList):
		writeError(w, http.StatusBadGateway, ErrCodeBadGateway, err.Error())
	case err != nil:
		s.logger.Error("reconcile request failed", "hub_id", hubID, "error", err)
		writeInternalError(w, "reconcile failed")
	default:
		writeJSON(w, http.StatusOK, report)
	}
}

type accessoryResponse struct {
	ID           string    `json:"id"`
	DisplayName  string    `json:"display_name"`
	HubID        string    `json:"hub_id"`
	SerialNumber uint32    `json:"serial_number"`
	DeviceType   string    `json:"device_type"`
	ModelNumber  string    `json:"model_number,omitempty"`
	Attached     bool      `json:"attached"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (s *Server) toAccessoryResponse(a *accessory.Accessory) accessoryResponse {
	d := a.Context.Device
	return accessoryResponse{
		ID:           a.ID,
		DisplayName:  a.DisplayName,
		HubID:        a.Context.HubID,
		SerialNumber: d.SerialNumber,
		DeviceType:   d.DeviceType,
		ModelNumber:  d.ModelNumber,
		Attached:     s.engine.Attached(a.ID),
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

// handleListAccessories lists persisted accessories, optionally for one hub.
func (s *Server) handleListAccessories(w http.ResponseWriter, r *http.Request) {
	var list []*accessory.Accessory
	if hubID := r.URL.Query().Get("hub_id"); hubID != "" {
		list = s.accessories.ListByHub(discovery.NormalizeHubID(hubID))
	} else {
		list = s.accessories.List()
	}

	out := make([]accessoryResponse, 0, len(list))
	for _, a := range list {
		out = append(out, s.toAccessoryResponse(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"accessories": out,
		"count":       len(out),
	})
}

func (s *Server) handleGetAccessory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a, ok := s.accessories.Get(id)
	if !ok {
		writeNotFound(w, "accessory not found")
		return
	}
	writeJSON(w, http.StatusOK, s.toAccessoryResponse(a))
}
