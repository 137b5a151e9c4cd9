// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/graphforge/core/internal/daemon/httputil"
	"github.com/graphforge/core/pkg/engine/compiler"
	"github.com/graphforge/core/pkg/engine/orchestrator"
	"github.com/graphforge/core/pkg/engine/registry"
	"github.com/graphforge/core/pkg/engine/store"
	"github.com/graphforge/core/pkg/engine/tracebus"
)

// EngineHandlerConfig wires an EngineHandler to the graph compiler,
// component registry, orchestrator, and trace bus it serves.
type EngineHandlerConfig struct {
	Registry     *registry.Registry
	Store        store.Store
	Orchestrator *orchestrator.Orchestrator
	Bus          *tracebus.Bus
}

// EngineHandler serves the graph-submission API (spec §6): compiling
// graphs, starting runs against them, reading back a run's terminal
// state, and replaying/tailing a run's trace. It is a handler struct
// whose routes are attached to a mux by RegisterRoutes.
type EngineHandler struct {
	reg *registry.Registry
	st  store.Store
	orc *orchestrator.Orchestrator
	bus *tracebus.Bus
}

// NewEngineHandler constructs an EngineHandler from cfg.
func NewEngineHandler(cfg EngineHandlerConfig) *EngineHandler {
	return &EngineHandler{reg: cfg.Registry, st: cfg.Store, orc: cfg.Orchestrator, bus: cfg.Bus}
}

// RegisterRoutes registers the engine's endpoints on mux.
func (h *EngineHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/graphs/compile", h.handleCompile)
	mux.HandleFunc("POST /v1/runs", h.handleStartRun)
	mux.HandleFunc("GET /v1/runs/{runId}", h.handleGetRun)
	mux.HandleFunc("GET /v1/runs/{runId}/trace", h.handleTrace)
}

type startRunRequest struct {
	Graph      compiler.Graph `json:"graph"`
	WorkflowID string         `json:"workflowId"`
	RunID      string         `json:"runId"`
	Inputs     map[string]any `json:"inputs"`
	Idempotency string        `json:"idempotencyKey"`
}

func (h *EngineHandler) handleCompile(w http.ResponseWriter, r *http.Request) {
	var g compiler.Graph
	if err := json.NewDecoder(r.Body).Decode(&g); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, fmt.Sprintf("decode graph: %v", err))
		return
	}
	def, err := compiler.Compile(g, h.reg)
	if err != nil {
		httputil.WriteJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, def)
}

func (h *EngineHandler) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
		return
	}

	def, err := compiler.Compile(req.Graph, h.reg)
	if err != nil {
		httputil.WriteJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": err.Error()})
		return
	}

	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	result, runErr := h.orc.Run(r.Context(), def, store.RunDescriptor{
		RunID:          runID,
		WorkflowID:     req.WorkflowID,
		Inputs:         req.Inputs,
		IdempotencyKey: req.Idempotency,
		Trigger:        store.Trigger{Type: "api", Label: "POST /v1/runs"},
	})

	resp := map[string]any{"runId": runID}
	if result != nil {
		resp["status"] = result.Run.Status
		resp["outputs"] = result.Outputs
		if result.Run.Failure != nil {
			resp["failure"] = result.Run.Failure
		}
	}
	if runErr != nil {
		resp["error"] = runErr.Error()
		httputil.WriteJSON(w, http.StatusOK, resp) // run completed, terminal status carries the failure
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *EngineHandler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.st.GetRun(r.Context(), r.PathValue("runId"))
	if err != nil {
		httputil.WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, run)
}

// handleTrace streams a run's event log as newline-delimited JSON:
// persisted events first, then live events as they are appended,
// matching spec §6's "batch then live stream" trace contract. It
// flushes after every event so a client reading the response body
// incrementally (e.g. with curl --no-buffer) sees events as they
// arrive rather than only once the connection closes.
func (h *EngineHandler) handleTrace(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("runId")
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	bw := bufio.NewWriter(w)

	err := tracebus.Tail(r.Context(), h.st, h.bus, runID, 0, func(ev store.Event) {
		_ = json.NewEncoder(bw).Encode(ev)
		_ = bw.Flush()
		if flusher != nil {
			flusher.Flush()
		}
	})
	if err != nil && !errors.Is(err, r.Context().Err()) {
		_ = json.NewEncoder(bw).Encode(map[string]string{"error": err.Error()})
		_ = bw.Flush()
	}
}
