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

package runner

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/graphforge/core/pkg/engine/errkind"
	"github.com/graphforge/core/pkg/engine/registry"
	"github.com/graphforge/core/pkg/engine/runtime"
)

// killGrace is how long a container is given to exit on its own after
// its context is cancelled before the runner forcibly kills it (spec
// §5 "if they do not [abort on cancellation]... the runner terminates
// the container ... after the grace window").
const killGrace = 5 * time.Second

// wireEvent is one newline-delimited JSON line emitted by a container
// on stdout (spec §4.7, §6 "Container runner wire format").
type wireEvent struct {
	Type    string         `json:"type"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	Outputs map[string]any `json:"outputs,omitempty"`
	Kind    string         `json:"kind,omitempty"`
}

// stdinDocument is the single JSON document written to the container's
// stdin before its stdout is read (spec §4.7).
type stdinDocument struct {
	Inputs  map[string]any `json:"inputs"`
	Params  map[string]any `json:"params"`
	Context stdinContext   `json:"context"`
}

type stdinContext struct {
	RunID        string `json:"runId"`
	ComponentRef string `json:"componentRef"`
	Attempt      int    `json:"attempt"`
}

// ContainerRunner dispatches RunnerContainer components as one-shot
// Docker/Podman containers, per spec §4.7. It satisfies
// runtime.Runner.
type ContainerRunner struct {
	binary string // "docker" or "podman"
}

// NewContainerRunner probes for a usable container CLI, preferring
// Docker over Podman, matching pkg/security/sandbox.detectRuntime's
// preference order. It returns an error if neither is on PATH so
// callers can fail fast at startup rather than on first dispatch.
func NewContainerRunner() (*ContainerRunner, error) {
	bin := detectBinary()
	if bin == "" {
		return nil, fmt.Errorf("runner: no container runtime found (tried docker, podman)")
	}
	return &ContainerRunner{binary: bin}, nil
}

func detectBinary() string {
	if _, err := exec.LookPath("docker"); err == nil {
		if err := exec.Command("docker", "info").Run(); err == nil {
			return "docker"
		}
	}
	if _, err := exec.LookPath("podman"); err == nil {
		return "podman"
	}
	return ""
}

// Dispatch runs the component's configured image as one attached,
// auto-removed container (run --rm -i), feeding it the activity's inputs/params/context on stdin
// and reading progress/result/error events back off its stdout.
func (r *ContainerRunner) Dispatch(ctx context.Context, def *registry.Definition, in registry.ActivityInput, actx *registry.ActivityContext) (registry.ActivityOutput, error) {
	if def.Runner.Image == "" {
		return registry.ActivityOutput{}, &runtime.ActivityError{
			ComponentRef: def.ID,
			Kind:         errkind.ConfigurationError,
			Message:      "runner=container requires an image",
		}
	}

	doc := stdinDocument{
		Inputs: in.Inputs,
		Params: in.Params,
		Context: stdinContext{
			RunID:        actx.RunID,
			ComponentRef: actx.ComponentRef,
			Attempt:      actx.Attempt,
		},
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return registry.ActivityOutput{}, &runtime.ActivityError{
			ComponentRef: def.ID,
			Kind:         errkind.InternalError,
			Message:      fmt.Sprintf("marshal stdin document: %v", err),
			Cause:        err,
		}
	}

	if actx.Logger != nil {
		actx.Logger.Info("runner.container.dispatch",
			"image", def.Runner.Image,
			"inputs", redactSecrets(def, in.Params, in.Inputs))
	}

	args := []string{"run", "--rm", "-i", "--label", fmt.Sprintf("graphforge.run=%s", actx.RunID), def.Runner.Image}
	args = append(args, def.Runner.Command...)

	cmd := exec.CommandContext(ctx, r.binary, args...)
	// On cancellation ask the process to stop, and kill it only once
	// killGrace has passed.
	cmd.Cancel = func() error {
		time.AfterFunc(killGrace, func() { _ = cmd.Process.Kill() })
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.Stdin = bytes.NewReader(payload)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return registry.ActivityOutput{}, &runtime.ActivityError{ComponentRef: def.ID, Kind: errkind.ContainerError, Message: fmt.Sprintf("stdout pipe: %v", err), Cause: err}
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return registry.ActivityOutput{}, &runtime.ActivityError{ComponentRef: def.ID, Kind: errkind.ContainerError, Message: fmt.Sprintf("start container: %v", err), Cause: err}
	}

	var outputs map[string]any
	var wireErr *wireEvent
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var ev wireEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue // non-protocol stdout noise is ignored, not fatal
		}
		switch ev.Type {
		case "progress":
			if actx.EmitProgress != nil {
				actx.EmitProgress(registry.ProgressEvent{Level: "info", Message: ev.Message, Data: ev.Data})
			}
		case "result":
			outputs = ev.Outputs
		case "error":
			e := ev
			wireErr = &e
		}
	}

	waitErr := r.waitWithGrace(ctx, cmd)

	if wireErr != nil {
		return registry.ActivityOutput{}, &runtime.ActivityError{
			ComponentRef: def.ID,
			Kind:         classifyWireKind(wireErr.Kind),
			Message:      wireErr.Message,
		}
	}

	if waitErr != nil {
		kind := errkind.ContainerError
		if ctx.Err() != nil {
			kind = errkind.CancelledError
		}
		msg := waitErr.Error()
		if stderr.Len() > 0 {
			msg = fmt.Sprintf("%s (stderr: %s)", msg, strings.TrimSpace(stderr.String()))
		}
		return registry.ActivityOutput{}, &runtime.ActivityError{
			ComponentRef: def.ID,
			Kind:         kind,
			Message:      msg,
			Cause:        waitErr,
		}
	}

	return registry.ActivityOutput{Outputs: outputs}, nil
}

// waitWithGrace waits for the container process to exit. If the
// activity context is cancelled first, it gives the process killGrace
// to exit cooperatively before forcibly killing it (spec §5).
func (r *ContainerRunner) waitWithGrace(ctx context.Context, cmd *exec.Cmd) error {
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		select {
		case err := <-done:
			return err
		case <-time.After(killGrace):
			if cmd.Process != nil {
				_ = cmd.Process.Kill()
			}
			<-done
			return ctx.Err()
		}
	}
}

// classifyWireKind maps a container's reported error kind onto the
// closed errkind.Kind taxonomy, degrading anything unrecognized to
// InternalError (spec §4.4 "unclassified failures degrade to
// InternalError").
func classifyWireKind(kind string) errkind.Kind {
	k := errkind.Kind(kind)
	if errkind.Valid(k) {
		return k
	}
	return errkind.InternalError
}

// redactSecrets returns a copy of inputs with any handle whose port is
// declared editor=secret replaced by a fixed placeholder, for logging
// only — the unredacted map is still what's written to the container's
// stdin (spec §4.7).
func redactSecrets(def *registry.Definition, params, inputs map[string]any) map[string]any {
	secret := make(map[string]bool)
	specs, _, err := def.EffectivePorts(params)
	if err == nil {
		for _, s := range specs {
			if s.Editor == "secret" {
				secret[s.Handle] = true
			}
		}
	}
	redacted := make(map[string]any, len(inputs))
	for k, v := range inputs {
		if secret[k] {
			redacted[k] = "[REDACTED]"
			continue
		}
		redacted[k] = v
	}
	return redacted
}
