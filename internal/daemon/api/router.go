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

// Package api provides the HTTP API for the daemon.
package api

import (
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/graphforge/core/internal/daemon/httputil"
	"github.com/graphforge/core/internal/log"
	"github.com/graphforge/core/internal/tracing"
)

// RouterConfig holds configuration for the API router.
type RouterConfig struct {
	Version   string
	Commit    string
	BuildDate string

	// TaskQueue and Namespace identify the worker pool this daemon
	// process belongs to (spec §6 "process environment"); they are
	// surfaced on /v1/health purely for operational visibility.
	TaskQueue string
	Namespace string
}

// HealthResponse is the body returned by GET /v1/health.
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	TaskQueue string            `json:"taskQueue,omitempty"`
	Namespace string            `json:"namespace,omitempty"`
	Checks    map[string]string `json:"checks"`
}

// VersionResponse is the body returned by GET /v1/version.
type VersionResponse struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// Router wraps an http.ServeMux with additional functionality.
type Router struct {
	mux    *http.ServeMux
	config RouterConfig
	logger *slog.Logger
}

// SetEngineHandler registers the graph compile/run/trace routes served
// by the graph-compiler/orchestrator engine.
func (r *Router) SetEngineHandler(handler *EngineHandler) {
	if handler != nil {
		handler.RegisterRoutes(r.mux)
	}
}

// NewRouter creates a new HTTP router with all API endpoints.
func NewRouter(cfg RouterConfig) *Router {
	r := &Router{
		mux:    http.NewServeMux(),
		config: cfg,
		logger: log.New(log.FromEnv()),
	}

	// Register API v1 endpoints
	r.mux.HandleFunc("GET /v1/health", r.handleHealth)
	r.mux.HandleFunc("GET /v1/version", r.handleVersion)

	// Root endpoint for basic connectivity check
	r.mux.HandleFunc("GET /", r.handleRoot)

	return r
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	// Build middleware chain; listed from outermost to innermost, which is
	// the order they run on a request:
	// 1. HTTP trace context extraction (outermost - runs first)
	// 2. Tracing middleware (creates spans)
	// 3. Correlation middleware
	// 4. Request logging (innermost)

	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.mux.ServeHTTP(w, req)
	})

	// Apply request logging middleware
	// Capture the inner handler to avoid closure over reassigned variable
	innerHandler := handler
	handler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		// Log request with correlation ID
		start := time.Now()
		correlationID := tracing.FromContextOrEmpty(req.Context())
		logger := log.WithCorrelationID(r.logger, string(correlationID))

		defer func() {
			logger.Info("request completed",
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		}()

		innerHandler.ServeHTTP(w, req)
	})

	// Apply correlation middleware
	handler = tracing.CorrelationMiddleware(handler)

	// Apply tracing middleware to create spans for requests
	handler = tracing.TracingMiddleware(handler)

	// Apply HTTP middleware to extract trace context from headers (must be first)
	handler = tracing.HTTPMiddleware(handler)

	handler.ServeHTTP(w, req)
}

// Mux returns the underlying ServeMux for registering additional routes.
func (r *Router) Mux() *http.ServeMux {
	return r.mux
}

// handleRoot handles GET / for basic connectivity.
func (r *Router) handleRoot(w http.ResponseWriter, req *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"name":    "graphcored",
		"version": r.config.Version,
	})
}

// handleHealth handles GET /v1/health.
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Version:   r.config.Version,
		TaskQueue: r.config.TaskQueue,
		Namespace: r.config.Namespace,
		Checks: map[string]string{
			"api":     "ok",
			"runtime": runtime.Version(),
		},
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// handleVersion handles GET /v1/version.
func (r *Router) handleVersion(w http.ResponseWriter, req *http.Request) {
	resp := VersionResponse{
		Version:   r.config.Version,
		Commit:    r.config.Commit,
		BuildDate: r.config.BuildDate,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
