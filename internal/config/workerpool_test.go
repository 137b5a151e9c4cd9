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

package config

import "testing"

func TestDefaultWorkerPool(t *testing.T) {
	wp := DefaultWorkerPool()

	if wp.TaskQueue != DefaultTaskQueue {
		t.Errorf("expected default task queue %q, got %q", DefaultTaskQueue, wp.TaskQueue)
	}
	if wp.Namespace != DefaultNamespace {
		t.Errorf("expected default namespace %q, got %q", DefaultNamespace, wp.Namespace)
	}
	if wp.SpillingEnabled() {
		t.Error("expected spilling disabled by default")
	}
}

func TestWorkerPoolFromEnv(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		want    WorkerPool
	}{
		{
			name:    "defaults when no env vars set",
			envVars: map[string]string{},
			want:    DefaultWorkerPool(),
		},
		{
			name: "overrides task queue and namespace",
			envVars: map[string]string{
				EnvTaskQueue: "workflows-prod",
				EnvNamespace: "team-payments",
			},
			want: WorkerPool{TaskQueue: "workflows-prod", Namespace: "team-payments"},
		},
		{
			name: "blob store configured",
			envVars: map[string]string{
				EnvBlobStoreBucket:   "graphcore-spill",
				EnvBlobStoreEndpoint: "https://s3.example.internal",
				EnvBlobStoreRegion:   "us-east-1",
			},
			want: WorkerPool{
				TaskQueue:         DefaultTaskQueue,
				Namespace:         DefaultNamespace,
				BlobStoreBucket:   "graphcore-spill",
				BlobStoreEndpoint: "https://s3.example.internal",
				BlobStoreRegion:   "us-east-1",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range []string{EnvTaskQueue, EnvNamespace, EnvBlobStoreBucket, EnvBlobStoreEndpoint, EnvBlobStoreRegion} {
				t.Setenv(k, tt.envVars[k])
			}

			got := WorkerPoolFromEnv()
			if got != tt.want {
				t.Errorf("WorkerPoolFromEnv() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestWorkerPoolSpillingEnabled(t *testing.T) {
	wp := WorkerPool{BlobStoreBucket: "b"}
	if !wp.SpillingEnabled() {
		t.Error("expected spilling enabled when bucket is set")
	}

	wp.BlobStoreBucket = ""
	if wp.SpillingEnabled() {
		t.Error("expected spilling disabled when bucket is empty")
	}
}
