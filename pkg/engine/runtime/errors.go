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

package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/graphforge/core/pkg/engine/errkind"
)

// ActivityError is the typed failure an Invoke call returns, carrying
// the closed errkind.Kind classification that both the trace FAILED
// event and the orchestrator's retry/routing decision key off (spec
// §4.4 step 7, §7). It follows the teacher's pkg/errors convention of
// a small typed struct with Unwrap rather than a bare error string.
type ActivityError struct {
	ComponentRef string
	NodeRef      string
	Attempt      int
	Kind         errkind.Kind
	Message      string
	Cause        error
}

func (e *ActivityError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s (node %s, attempt %d) [%s]: %s", e.ComponentRef, e.NodeRef, e.Attempt, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s (node %s, attempt %d) failed [%s]", e.ComponentRef, e.NodeRef, e.Attempt, e.Kind)
}

func (e *ActivityError) Unwrap() error {
	return e.Cause
}

// Classify maps an arbitrary error to a member of the closed
// errkind.Kind taxonomy. An *ActivityError keeps its declared kind;
// context cancellation/deadline becomes CancelledError/TimeoutError;
// anything else degrades to InternalError (spec §4.4 "unclassified
// failures degrade to InternalError").
func Classify(err error) errkind.Kind {
	if err == nil {
		return ""
	}
	var ae *ActivityError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errkind.TimeoutError
	}
	if errors.Is(err, context.Canceled) {
		return errkind.CancelledError
	}
	return errkind.InternalError
}
