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
	"fmt"

	"github.com/itchyny/gojq"
)

// MaxSummaryFieldBytes is the UTF-8 byte length of a string value above
// which outputSummary elides it (spec §4.4 step 6
// "outputSummary (JSON with large fields elided)").
const MaxSummaryFieldBytes = 4096

// summaryQuery walks the output document and replaces any string
// longer than MaxSummaryFieldBytes bytes with a placeholder, the way
// internal/jq.Executor compiles a query once and runs it against
// arbitrary JSON-like data.
var summaryQuery = mustCompileSummaryQuery()

func mustCompileSummaryQuery() *gojq.Code {
	src := fmt.Sprintf(
		`walk(if type == "string" and utf8bytelength > %d then "<elided:\(utf8bytelength) bytes>" else . end)`,
		MaxSummaryFieldBytes)
	query, err := gojq.Parse(src)
	if err != nil {
		panic(fmt.Sprintf("runtime: invalid built-in summary query: %v", err))
	}
	code, err := gojq.Compile(query)
	if err != nil {
		panic(fmt.Sprintf("runtime: failed to compile summary query: %v", err))
	}
	return code
}

// summarizeOutputs elides large fields from a component's outputs for
// the COMPLETED trace event's outputSummary (spec §4.4 step 6). A jq
// failure falls back to returning the outputs unchanged rather than
// failing the activity — summarization is best-effort, never load
// bearing for correctness.
func summarizeOutputs(outputs map[string]any) map[string]any {
	iter := summaryQuery.Run(toJQInput(outputs))
	v, ok := iter.Next()
	if !ok {
		return outputs
	}
	if err, isErr := v.(error); isErr {
		_ = err
		return outputs
	}
	summarized, ok := v.(map[string]any)
	if !ok {
		return outputs
	}
	return summarized
}

// toJQInput converts a map[string]any into the interface{} shape gojq
// expects (map[string]interface{} with no custom types), which is
// already the representation store.Payload/ActivityOutput use.
func toJQInput(outputs map[string]any) any {
	if outputs == nil {
		return map[string]any{}
	}
	return outputs
}
