package compiler

import "fmt"

// FailureKind is the closed set of reasons Compile can reject a graph
// (spec §4.1 "Failure kinds").
type FailureKind string

const (
	ComponentNotRegistered    FailureKind = "ComponentNotRegistered"
	PortTypeMismatch          FailureKind = "PortTypeMismatch"
	MultipleEdgesToPort       FailureKind = "MultipleEdgesToPort"
	WorkflowGraphContainsCycle FailureKind = "WorkflowGraphContainsCycle"
	EntrypointMissing         FailureKind = "EntrypointMissing"
	EntrypointAmbiguous       FailureKind = "EntrypointAmbiguous"
)

// CompileError is the typed error Compile returns on rejection,
// following pkg/errors' convention of small typed structs carrying
// enough structured context to act on without parsing a message string.
type CompileError struct {
	Kind    FailureKind
	NodeRef string
	EdgeID  string
	Detail  string
}

func (e *CompileError) Error() string {
	switch {
	case e.NodeRef != "" && e.EdgeID != "":
		return fmt.Sprintf("compiler: %s: node %q edge %q: %s", e.Kind, e.NodeRef, e.EdgeID, e.Detail)
	case e.NodeRef != "":
		return fmt.Sprintf("compiler: %s: node %q: %s", e.Kind, e.NodeRef, e.Detail)
	case e.EdgeID != "":
		return fmt.Sprintf("compiler: %s: edge %q: %s", e.Kind, e.EdgeID, e.Detail)
	default:
		return fmt.Sprintf("compiler: %s: %s", e.Kind, e.Detail)
	}
}
