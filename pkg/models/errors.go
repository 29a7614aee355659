// Package models defines the public domain models and error types for the
// attribute evaluation engine.
package models

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the fixed error kinds the engine recognizes. Most are
// wrapped by a structured type below; a few (unknown dependency, override on
// a calculated attribute) are logged as warnings rather than returned, per
// the propagation policy: the engine never aborts a run for a single
// attribute-level problem.
var (
	// ErrDuplicateID is returned when a block or registry already holds an
	// attribute with the given id.
	ErrDuplicateID = errors.New("duplicate attribute id")

	// ErrCalculatedNeedsFunction is returned when an attribute is
	// constructed with kind=Calculated but no calculate function.
	ErrCalculatedNeedsFunction = errors.New("calculated attribute has no calculate function")

	// ErrUnknownDependency marks a declared dependency id that is not
	// registered anywhere in the simulation. Non-fatal: logged and the
	// edge is dropped from the dependency graph.
	ErrUnknownDependency = errors.New("dependency references an unregistered attribute")

	// ErrOverrideOnCalculated marks a scenario override that targets a
	// calculated attribute. Non-fatal: logged and the override is ignored.
	ErrOverrideOnCalculated = errors.New("scenario override targets a calculated attribute")

	// ErrAttributeNotFound is wrapped by Attribute.Validate when an
	// attribute has an empty id.
	ErrAttributeNotFound = errors.New("attribute not found")

	// ErrInputHasCalculation is returned when an Input attribute carries a
	// Calculate function or CalculateExpr, which contradicts its kind.
	ErrInputHasCalculation = errors.New("input attribute must not carry a calculation")
)

// ConfigurationError represents a fatal model-construction error: a
// duplicate id, a calculated attribute missing its calculate function, or
// any other problem that must stop block registration outright.
type ConfigurationError struct {
	AttributeID string
	Op          string
	Err         error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error on attribute %q during %s: %v", e.AttributeID, e.Op, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// ValidationError describes one attribute whose final value is null after a
// run. The orchestrator's Validate state collects one of these per offending
// attribute.
type ValidationError struct {
	AttributeID string
	Message     string
}

func (e *ValidationError) Error() string {
	return e.AttributeID + ": " + e.Message
}

// ValidationErrors aggregates the attributes that failed validation into a
// single error; Error() renders a comma-separated id list, matching the
// Result Record's error_message shape.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	ids := make([]string, len(e))
	for i, v := range e {
		ids[i] = v.AttributeID
	}
	return "validation failed for attributes: " + strings.Join(ids, ", ")
}

// CycleDetectedError carries every simple cycle found by the dependency
// graph. Raised only by TopologicalSort; the orchestrator routes around it
// by invoking the iterative cycle solver instead of treating it as fatal.
type CycleDetectedError struct {
	Cycles [][]string
}

func (e *CycleDetectedError) Error() string {
	return fmt.Sprintf("%d cycle(s) detected in dependency graph", len(e.Cycles))
}
