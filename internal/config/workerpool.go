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

// Package config holds the graphcored worker-pool's process environment
// (spec §6): the task-queue name and namespace identifying which pool a
// daemon process belongs to, and the optional blob-store endpoint that
// spilled activity payloads are written through. No other environment
// variable governs the engine's core semantics.
package config

import "os"

// Default values applied when the corresponding environment variable is
// unset or empty.
const (
	DefaultTaskQueue = "workflows-dev"
	DefaultNamespace = "default"
)

// Environment variable names read by WorkerPoolFromEnv.
const (
	EnvTaskQueue         = "GRAPHCORE_TASK_QUEUE"
	EnvNamespace         = "GRAPHCORE_NAMESPACE"
	EnvBlobStoreBucket   = "GRAPHCORE_BLOB_STORE_BUCKET"
	EnvBlobStoreEndpoint = "GRAPHCORE_BLOB_STORE_ENDPOINT"
	EnvBlobStoreRegion   = "GRAPHCORE_BLOB_STORE_REGION"
)

// WorkerPool is the process environment a graphcored worker pool reads at
// startup: which task queue it listens on, which namespace it belongs to,
// and (optionally) the blob store spilled activity payloads are written
// through when they exceed the engine's in-store size threshold.
type WorkerPool struct {
	// TaskQueue identifies the queue this pool's workers listen on
	// (e.g. "workflows-dev", "workflows-prod").
	TaskQueue string

	// Namespace scopes the pool within a task queue; pools in different
	// namespaces on the same queue do not share run state.
	Namespace string

	// BlobStoreBucket, if set, enables spilling oversized payloads to
	// blob storage. BlobStoreEndpoint and BlobStoreRegion are optional
	// overrides for non-default S3-compatible endpoints/regions.
	BlobStoreBucket   string
	BlobStoreEndpoint string
	BlobStoreRegion   string
}

// DefaultWorkerPool returns a WorkerPool with the default task queue and
// namespace, and blob-store spilling disabled.
func DefaultWorkerPool() WorkerPool {
	return WorkerPool{
		TaskQueue: DefaultTaskQueue,
		Namespace: DefaultNamespace,
	}
}

// WorkerPoolFromEnv builds a WorkerPool from the process environment,
// falling back to DefaultWorkerPool for any variable that is unset.
func WorkerPoolFromEnv() WorkerPool {
	wp := DefaultWorkerPool()

	if v := os.Getenv(EnvTaskQueue); v != "" {
		wp.TaskQueue = v
	}
	if v := os.Getenv(EnvNamespace); v != "" {
		wp.Namespace = v
	}
	wp.BlobStoreBucket = os.Getenv(EnvBlobStoreBucket)
	wp.BlobStoreEndpoint = os.Getenv(EnvBlobStoreEndpoint)
	wp.BlobStoreRegion = os.Getenv(EnvBlobStoreRegion)

	return wp
}

// SpillingEnabled reports whether a blob store is configured for payload
// spilling.
func (wp WorkerPool) SpillingEnabled() bool {
	return wp.BlobStoreBucket != ""
}
