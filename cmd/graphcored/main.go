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

// graphcored is the long-running worker-pool daemon for the graph
// engine: it holds one durable store and one component registry open
// for the process lifetime and serves graph compile/run/trace requests
// over HTTP, the same split cmd/conductord draws between itself and
// cmd/conductor's one-shot CLI invocations.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/graphforge/core/internal/config"
	"github.com/graphforge/core/internal/daemon/api"
	"github.com/graphforge/core/internal/log"
	"github.com/graphforge/core/pkg/engine/builtins"
	"github.com/graphforge/core/pkg/engine/orchestrator"
	"github.com/graphforge/core/pkg/engine/registry"
	"github.com/graphforge/core/pkg/engine/runner"
	"github.com/graphforge/core/pkg/engine/runtime"
	"github.com/graphforge/core/pkg/engine/store"
	"github.com/graphforge/core/pkg/engine/store/blob"
	"github.com/graphforge/core/pkg/engine/store/sqlite"
	"github.com/graphforge/core/pkg/engine/tracebus"
	"github.com/graphforge/core/pkg/secrets"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	var (
		tcpAddr     = flag.String("tcp", "127.0.0.1:7070", "TCP address to listen on")
		storePath   = flag.String("store", "", "Path to a sqlite store file (default: in-memory, discarded on exit)")
		concurrency = flag.Int64("concurrency", orchestrator.DefaultConcurrency, "Run-wide concurrent-action cap shared by every run the daemon drives")
		allowRemote = flag.Bool("allow-remote", false, "Allow binding to non-localhost addresses (SECURITY WARNING)")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("graphcored %s (commit: %s, built: %s)\n", version, commit, buildDate)
		return
	}

	logger := log.New(log.FromEnv())
	slog.SetDefault(logger)

	if !*allowRemote && !isLoopback(*tcpAddr) {
		logger.Error("refusing to bind a non-loopback address without --allow-remote", slog.String("addr", *tcpAddr))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wp := config.WorkerPoolFromEnv()
	mask := secrets.NewMasker()
	mask.AddSecretsFromEnv(envMap())
	logger.Info("process environment",
		slog.String("task_queue", wp.TaskQueue),
		slog.String("namespace", wp.Namespace),
		slog.Bool("spill_enabled", wp.SpillingEnabled()),
		slog.String("blob_endpoint", mask.Mask(wp.BlobStoreEndpoint)),
	)

	st, closeStore, err := openStore(*storePath)
	if err != nil {
		logger.Error("failed to open store", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeStore()

	if wp.SpillingEnabled() {
		blobStore, err := blob.New(ctx, blob.Config{
			Bucket:   wp.BlobStoreBucket,
			Region:   wp.BlobStoreRegion,
			Endpoint: wp.BlobStoreEndpoint,
		})
		if err != nil {
			logger.Error("failed to configure blob store", slog.Any("error", err))
			os.Exit(1)
		}
		st = store.NewSpillingStore(st, blobStore, store.DefaultSpillThreshold)
		logger.Info("payload spilling enabled", slog.String("bucket", wp.BlobStoreBucket))
	}

	reg := registry.New()
	if err := builtins.RegisterAll(reg); err != nil {
		logger.Error("failed to register built-in components", slog.Any("error", err))
		os.Exit(1)
	}
	reg.Build()

	bus := tracebus.New()
	rt := runtime.New(reg, &daemonTraceSink{store: st, bus: bus})
	if cr, err := runner.NewContainerRunner(); err == nil {
		rt = rt.WithRunner(registry.RunnerContainer, cr)
		logger.Info("container runner adapter registered")
	} else {
		logger.Warn("no docker/podman binary detected; container-runner components will fail to dispatch", slog.Any("error", err))
	}

	orc := orchestrator.New(st, rt).WithConcurrency(*concurrency)

	router := api.NewRouter(api.RouterConfig{
		Version:   version,
		Commit:    commit,
		BuildDate: buildDate,
		TaskQueue: wp.TaskQueue,
		Namespace: wp.Namespace,
	})
	router.SetEngineHandler(api.NewEngineHandler(api.EngineHandlerConfig{
		Registry:     reg,
		Store:        st,
		Orchestrator: orc,
		Bus:          bus,
	}))

	srv := &http.Server{
		Addr:              *tcpAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("graphcored listening", slog.String("addr", *tcpAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case sig := <-sigCh:
		fmt.Printf("\nReceived signal %v, shutting down...\n", sig)
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("error during shutdown", slog.Any("error", err))
			os.Exit(1)
		}
	case err := <-errCh:
		if err != nil {
			logger.Error("daemon error", slog.Any("error", err))
			os.Exit(1)
		}
	}
}

func openStore(path string) (store.Store, func(), error) {
	if path == "" {
		return store.NewMemoryStore(), func() {}, nil
	}
	s, err := sqlite.New(sqlite.Config{Path: path})
	if err != nil {
		return nil, nil, err
	}
	return s, func() { _ = s.Close() }, nil
}

// envMap snapshots the process environment as a map, for
// secrets.Masker.AddSecretsFromEnv to scan for credential-shaped
// values before they reach the logs.
func envMap() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			env[kv[:i]] = kv[i+1:]
		}
	}
	return env
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	return host == "127.0.0.1" || host == "localhost" || host == "::1" || host == ""
}

// daemonTraceSink mirrors internal/commands/graph's traceSink: persist
// through the durable store, then fan out to the live bus, per
// runtime.TraceSink's documented extension pattern.
type daemonTraceSink struct {
	store store.EventStore
	bus   *tracebus.Bus
}

func (s *daemonTraceSink) AppendEvents(ctx context.Context, runID string, events []store.Event) (uint64, error) {
	cursor, err := s.store.AppendEvents(ctx, runID, events)
	if err != nil {
		return cursor, err
	}
	s.bus.Publish(runID, events)
	return cursor, nil
}
