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

// Package errkind holds the closed activity-failure taxonomy (spec §4.4,
// §7) shared by the component registry (retryPolicy.nonRetryableErrorKinds),
// the activity runtime (classification), and the orchestrator (routing).
// It is deliberately dependency-free so every layer of the engine can
// import it without risking an import cycle.
package errkind

// Kind is one of the closed set of activity failure classifications.
type Kind string

const (
	NetworkError        Kind = "NetworkError"
	TimeoutError        Kind = "TimeoutError"
	RateLimitError      Kind = "RateLimitError"
	ServiceError        Kind = "ServiceError"
	ContainerError      Kind = "ContainerError"
	AuthenticationError Kind = "AuthenticationError"
	NotFoundError       Kind = "NotFoundError"
	ValidationError     Kind = "ValidationError"
	ConfigurationError  Kind = "ConfigurationError"
	PermissionError     Kind = "PermissionError"
	CancelledError      Kind = "CancelledError"
	InternalError       Kind = "InternalError"
)

// nonRetryable is the closed set of kinds that are fatal on first
// attempt regardless of the component's configured retryPolicy (§4.4
// step 7).
var nonRetryable = map[Kind]bool{
	AuthenticationError: true,
	NotFoundError:       true,
	ValidationError:     true,
	ConfigurationError:  true,
	PermissionError:     true,
}

// IsNonRetryable reports whether a kind is unconditionally fatal on
// first attempt, independent of any component-declared override list.
func IsNonRetryable(k Kind) bool {
	return nonRetryable[k]
}

// Valid reports whether k is a member of the closed taxonomy.
func Valid(k Kind) bool {
	switch k {
	case NetworkError, TimeoutError, RateLimitError, ServiceError, ContainerError,
		AuthenticationError, NotFoundError, ValidationError, ConfigurationError,
		PermissionError, CancelledError, InternalError:
		return true
	default:
		return false
	}
}
