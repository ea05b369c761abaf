package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/toolgate/toolgate/internal/audit"
	"github.com/toolgate/toolgate/internal/confirm"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Pending int    `json:"pending"`
	Uptime  string `json:"uptime"`
}

// resolveRequest is the JSON body for resolve endpoints. An empty or
// missing result defaults to allow_once.
type resolveRequest struct {
	Result string `json:"result"`
}

// resolveResponse reports the settlement applied by a resolve endpoint.
type resolveResponse struct {
	ServerID string         `json:"server_id"`
	Result   confirm.Result `json:"result"`
}

func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Pending: len(g.coordinator.Pending()),
			Uptime:  time.Since(g.startedAt).Round(time.Second).String(),
		})
	}
}

// handleListPending returns the coordinator snapshot. Order is
// unspecified.
func (g *Gateway) handleListPending() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		pending := g.coordinator.Pending()
		if pending == nil {
			pending = []confirm.Pending{}
		}
		writeJSON(w, http.StatusOK, pending)
	}
}

func (g *Gateway) handleResolve() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serverID := chi.URLParam(r, "server")
		result, ok := g.decodeResult(w, r)
		if !ok {
			return
		}

		if !g.coordinator.Resolve(serverID, result) {
			http.Error(w, "no pending confirmation for server", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, resolveResponse{ServerID: serverID, Result: result})
	}
}

func (g *Gateway) handleCancel() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serverID := chi.URLParam(r, "server")
		if !g.coordinator.Cancel(serverID) {
			http.Error(w, "no pending confirmation for server", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, resolveResponse{ServerID: serverID, Result: confirm.ResultDenied})
	}
}

// handleResolveTool resolves by tool ID. Legacy path; prefer addressing
// the server directly.
func (g *Gateway) handleResolveTool() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		toolID := chi.URLParam(r, "tool")
		result, ok := g.decodeResult(w, r)
		if !ok {
			return
		}

		serverID, found := g.coordinator.ServerForTool(toolID)
		if !found || !g.coordinator.Resolve(serverID, result) {
			http.Error(w, "no pending confirmation for tool", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, resolveResponse{ServerID: serverID, Result: result})
	}
}

func (g *Gateway) handleToolLookup() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		toolID := chi.URLParam(r, "tool")
		serverID, ok := g.coordinator.ServerForTool(toolID)
		if !ok {
			http.Error(w, "tool not pending", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"server_id": serverID})
	}
}

func (g *Gateway) handleListDecisions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = n
		}

		decisions, err := g.journal.Recent(r.Context(), limit)
		if err != nil {
			g.logger.Error("list decisions", "error", err)
			http.Error(w, "journal query failed", http.StatusInternalServerError)
			return
		}
		if decisions == nil {
			decisions = []audit.Decision{}
		}
		writeJSON(w, http.StatusOK, decisions)
	}
}

// decodeResult parses the optional resolve body. A missing body or empty
// result means allow_once.
func (g *Gateway) decodeResult(w http.ResponseWriter, r *http.Request) (confirm.Result, bool) {
	// An empty body is fine (defaults apply); malformed JSON is not.
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return "", false
	}

	result, err := confirm.ParseResult(req.Result)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return "", false
	}
	return result, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
