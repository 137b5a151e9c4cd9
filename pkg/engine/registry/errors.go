package registry

import "fmt"

// NotRegisteredError is returned by Get when no component with the given
// id has been registered. It mirrors pkg/errors' typed-struct-error
// convention: a concrete type with Error()/Unwrap() rather than a bare
// sentinel, so callers can errors.As into it when they need the id.
type NotRegisteredError struct {
	ID string
}

func (e *NotRegisteredError) Error() string {
	return fmt.Sprintf("registry: component %q is not registered", e.ID)
}

// AlreadyRegisteredError is returned by Register when id collides with
// an existing definition.
type AlreadyRegisteredError struct {
	ID string
}

func (e *AlreadyRegisteredError) Error() string {
	return fmt.Sprintf("registry: component %q is already registered", e.ID)
}

// FrozenError is returned by Register once the registry has been built
// (§5 "the component registry is read-only after startup").
type FrozenError struct {
	ID string
}

func (e *FrozenError) Error() string {
	return fmt.Sprintf("registry: cannot register %q: registry is frozen", e.ID)
}

// InvalidDefinitionError wraps a validation failure discovered while
// registering a component definition.
type InvalidDefinitionError struct {
	ID     string
	Reason string
}

func (e *InvalidDefinitionError) Error() string {
	return fmt.Sprintf("registry: component %q is invalid: %s", e.ID, e.Reason)
}
