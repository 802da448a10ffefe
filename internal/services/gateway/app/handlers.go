package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sony/gobreaker"

	"github.com/LeonardoBeccarini/sensorbus/internal/model"
	"github.com/LeonardoBeccarini/sensorbus/internal/model/messages"
	"github.com/LeonardoBeccarini/sensorbus/internal/services/persistence"
)

const codeInvalidRequest = "invalid_request"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: apiError{Code: code, Message: msg}})
}

// storeStatus maps storage errors to HTTP. An open breaker means the database is known to be down.
func storeStatus(err error) (int, string) {
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return http.StatusServiceUnavailable, "store_unavailable"
	default:
		return http.StatusInternalServerError, "store_error"
	}
}

func writeStoreError(w http.ResponseWriter, err error) {
	status, code := storeStatus(err)
	writeError(w, status, code, err.Error())
}

// HandleControl executes a command through the synchronizer and returns its Result.
func (g *Gateway) HandleControl(w http.ResponseWriter, r *http.Request) {
	device := chi.URLParam(r, "device")

	var req controlRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "cannot read body")
		return
	}
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequest, "body is not valid JSON")
			return
		}
	}
	if strings.TrimSpace(req.Action) == "" {
		req.Action = r.URL.Query().Get("action")
	}
	if strings.TrimSpace(req.Action) == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "action is required")
		return
	}

	cmd := messages.NewControlCommand(device, req.Action)
	cmd.Brightness = req.Brightness
	cmd.TargetState = req.TargetState
	cmd.CommandID = req.CommandID

	by := strings.TrimSpace(req.RequestedBy)
	if by == "" {
		by = "api"
	}

	ctx, cancel := context.WithTimeout(r.Context(), g.cfg.RequestTimeout)
	defer cancel()
	res := g.control.Execute(ctx, cmd, by)
	if !res.Success {
		code, msg := codeInvalidRequest, "command rejected"
		if res.Error != nil {
			code, msg = res.Error.Code, res.Error.Message
		}
		writeError(w, http.StatusBadRequest, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (g *Gateway) HandleDevices(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), g.cfg.RequestTimeout)
	defer cancel()
	list, err := g.control.Status(ctx)
	if err != nil {
		log.Printf("gateway: device status: %v", err)
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleAlerts lists unresolved alerts, newest first.
func (g *Gateway) HandleAlerts(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, codeInvalidRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	ctx, cancel := context.WithTimeout(r.Context(), g.cfg.RequestTimeout)
	defer cancel()
	alerts, err := g.store.UnresolvedAlerts(ctx, limit)
	if err != nil {
		log.Printf("gateway: list alerts: %v", err)
		writeStoreError(w, err)
		return
	}
	if alerts == nil {
		alerts = []model.Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (g *Gateway) HandleResolve(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "alert id must be a positive integer")
		return
	}
	var req resolveRequest
	_ = json.NewDecoder(io.LimitReader(r.Body, 1<<12)).Decode(&req)
	by := strings.TrimSpace(req.ResolvedBy)
	if by == "" {
		by = "api"
	}

	ctx, cancel := context.WithTimeout(r.Context(), g.cfg.RequestTimeout)
	defer cancel()
	if err := g.store.ResolveAlert(ctx, id, by); err != nil {
		if !errors.Is(err, persistence.ErrNotFound) {
			log.Printf("gateway: resolve alert %d: %v", id, err)
		}
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "resolved": true, "resolved_by": by})
}
