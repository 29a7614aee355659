package engine

import (
	"sort"
	"time"

	"github.com/attrflow/attrflow/internal/config"
	"github.com/attrflow/attrflow/internal/engine/conditioncache"
	"github.com/attrflow/attrflow/internal/infrastructure/logger"
	"github.com/attrflow/attrflow/internal/observer"
	"github.com/attrflow/attrflow/pkg/models"
)

// Orchestrator drives the evaluation state machine (§4.3):
//
//	Start → Initialize → DetectCycles → { CyclesClear → Calculate
//	                                     | CyclesDetected → ResolveCycles → Calculate }
//	     → Validate → End
//
// Each state is a plain method; the only non-linear edge is the cycles
// branch, modeled here as an if rather than an explicit state type, since
// there is nothing else to dispatch on.
type Orchestrator struct {
	reg       *AttributeRegistry
	cache     *conditioncache.Cache
	cfg       config.SolverConfig
	log       *logger.Logger
	observers *observer.ObserverManager

	didNotConvergeCount int
}

// NewOrchestrator wires a registry, expression cache, solver tuning, logger
// and observer manager into a ready-to-run orchestrator. log and observers
// may be nil; sensible no-op-equivalent defaults are substituted.
func NewOrchestrator(reg *AttributeRegistry, cache *conditioncache.Cache, cfg config.SolverConfig, log *logger.Logger, observers *observer.ObserverManager) *Orchestrator {
	if log == nil {
		log = logger.Default()
	}
	if observers == nil {
		observers = observer.NewObserverManager()
	}
	return &Orchestrator{reg: reg, cache: cache, cfg: cfg, log: log, observers: observers}
}

// Run executes one full evaluation: apply overrides, detect and resolve
// cycles, calculate every attribute, and validate the result. Attribute
// values are mutated in place on the registry as a side effect, except that
// every overridden Input gets its pre-run value back when Run returns; the
// returned ResultRecord is the authoritative, serializable outcome.
func (o *Orchestrator) Run(simulationID string, overrides *models.ScenarioStore) *models.ResultRecord {
	result := models.NewResultRecord(simulationID)
	started := time.Now()
	o.didNotConvergeCount = 0

	// An override applies to this run only: restore each overridden Input on
	// return so a cleared override does not linger in the model.
	for _, id := range sortedKeysFloat(overrides.All()) {
		if attr, ok := o.reg.Find(id); ok && attr.Kind == models.Input {
			previous := attr.Value
			defer func() { attr.Value = previous }()
		}
	}

	o.notify(observer.Event{
		Type:         observer.EventTypeRunStarted,
		SimulationID: simulationID,
		Message:      "run started",
	})

	o.initialize(simulationID, overrides)

	cyclesResolved := o.detectAndResolveCycles(simulationID, result)
	result.Metrics["did_not_converge_cycles"] = o.didNotConvergeCount

	o.calculate(simulationID, cyclesResolved)

	o.validate(simulationID, result)

	result.Finalize(time.Since(started))
	result.Metrics["total_attributes"] = o.reg.Len()
	result.Metrics["successful_calculations"] = len(result.CalculatedValues)
	result.Metrics["validation_timestamp"] = float64(time.Now().Unix())

	o.notify(observer.Event{
		Type:         observer.EventTypeRunCompleted,
		SimulationID: simulationID,
		Message:      string(result.Status),
		Metadata:     map[string]any{"status": string(result.Status)},
	})

	return result
}

// initialize applies every scenario override to its target Input attribute
// (§4.3 state 1). Overrides on an unknown id or a Calculated attribute are
// logged and ignored, never fatal.
func (o *Orchestrator) initialize(simulationID string, overrides *models.ScenarioStore) {
	o.notify(observer.Event{Type: observer.EventTypeStateEntered, SimulationID: simulationID, State: "initialize"})

	for _, id := range sortedKeysFloat(overrides.All()) {
		value, _ := overrides.Get(id)
		attrID := id

		attr, ok := o.reg.Find(id)
		if !ok || attr.Kind != models.Input {
			o.log.Warn("scenario override ignored", "attribute_id", id, "reason", "unknown id or not an input")
			o.notify(observer.Event{
				Type:         observer.EventTypeOverrideRejected,
				SimulationID: simulationID,
				State:        "initialize",
				AttributeID:  &attrID,
				Message:      "override target is unknown or not an input attribute",
			})
			continue
		}

		attr.Value = models.NumberValue(value)
		o.notify(observer.Event{
			Type:         observer.EventTypeOverrideApplied,
			SimulationID: simulationID,
			State:        "initialize",
			AttributeID:  &attrID,
			Metadata:     map[string]any{"value": value},
		})
	}
}

// detectAndResolveCycles runs DetectCycles and, if needed, ResolveCycles
// (§4.3 states 2-3). Returns whether the run is in "cycles_resolved" mode,
// which changes how Calculate behaves. cycles_resolved on the result is set
// to the number of cycles *detected*, not the number successfully
// stabilized (§9 design note 3: intentionally preserved).
func (o *Orchestrator) detectAndResolveCycles(simulationID string, result *models.ResultRecord) bool {
	o.notify(observer.Event{Type: observer.EventTypeStateEntered, SimulationID: simulationID, State: "detect_cycles"})

	graph := o.reg.BuildGraph(func(attributeID, dependencyID string) {
		o.log.Warn("dependency references an unregistered attribute", "attribute_id", attributeID, "dependency_id", dependencyID)
	})

	cycles := graph.FindCycles()
	if len(cycles) == 0 {
		return false
	}

	result.CyclesResolved = len(cycles)
	o.notify(observer.Event{
		Type:         observer.EventTypeCyclesDetected,
		SimulationID: simulationID,
		State:        "detect_cycles",
		Metadata:     map[string]any{"cycle_count": len(cycles)},
	})

	o.notify(observer.Event{Type: observer.EventTypeStateEntered, SimulationID: simulationID, State: "resolve_cycles"})

	for i, cycle := range cycles {
		cycleIndex := i
		outcome := ResolveCycle(
			o.reg, graph, o.cache, o.cfg, cycle,
			o.onMissingDependency(simulationID),
			o.onCalculationFailure(simulationID),
			o.onIteration(simulationID, cycleIndex),
		)
		if outcome == DidNotConverge {
			o.didNotConvergeCount++
		}

		o.notify(observer.Event{
			Type:         outcomeEventType(outcome),
			SimulationID: simulationID,
			State:        "resolve_cycles",
			CycleIndex:   &cycleIndex,
			Message:      string(outcome),
		})
	}

	return true
}

// calculate runs §4.3 state 4. In cycles_resolved mode it simply harvests
// whatever the solver and its pre/post passes already wrote; otherwise it
// walks the (now known acyclic) graph in topological order.
func (o *Orchestrator) calculate(simulationID string, cyclesResolved bool) {
	o.notify(observer.Event{Type: observer.EventTypeStateEntered, SimulationID: simulationID, State: "calculate"})

	if cyclesResolved {
		return
	}

	graph := o.reg.BuildGraph(nil)
	order, err := graph.TopologicalSort()
	if err != nil {
		// DetectCycles already found the graph acyclic; a cycle surfacing
		// here would mean the graph changed between calls, which the
		// engine does not support mid-run. Fall back to id order rather
		// than abort, consistent with the never-abort propagation policy.
		order = graph.Nodes()
	}

	for _, id := range order {
		attr, ok := o.reg.Find(id)
		if !ok {
			continue
		}
		evaluateOne(o.reg, o.cache, attr, o.onMissingDependency(simulationID), o.onCalculationFailure(simulationID))
	}
}

// validate runs §4.3 state 5: any attribute still Null fails the run.
func (o *Orchestrator) validate(simulationID string, result *models.ResultRecord) {
	o.notify(observer.Event{Type: observer.EventTypeStateEntered, SimulationID: simulationID, State: "validate"})

	var failures models.ValidationErrors
	for _, attr := range o.reg.All() {
		value, ok := attr.Value.Float64()
		if !ok {
			failures = append(failures, models.ValidationError{AttributeID: attr.ID, Message: "value is null after calculation"})
			continue
		}
		result.CalculatedValues[attr.ID] = value
	}

	if len(failures) > 0 {
		result.Status = models.ResultStatusValidationFailed
		msg := failures.Error()
		result.ErrorMessage = &msg
		return
	}

	result.Status = models.ResultStatusCompleted
}

func (o *Orchestrator) onMissingDependency(simulationID string) MissingDependencyFunc {
	return func(attributeID, dependencyID string) {
		o.log.Warn("missing dependency value substituted with 0", "attribute_id", attributeID, "dependency_id", dependencyID)
		attrID := attributeID
		o.notify(observer.Event{
			Type:         observer.EventTypeDependencySubstituted,
			SimulationID: simulationID,
			AttributeID:  &attrID,
			Metadata:     map[string]any{"dependency_id": dependencyID, "substituted": 0.0},
		})
	}
}

func (o *Orchestrator) onCalculationFailure(simulationID string) CalculationFailureFunc {
	return func(attributeID string, substituted float64, cause error) {
		o.log.Warn("calculation failed, kind-based default substituted", "attribute_id", attributeID, "default", substituted, "error", cause)
		attrID := attributeID
		o.notify(observer.Event{
			Type:         observer.EventTypeCalculationSubstituted,
			SimulationID: simulationID,
			AttributeID:  &attrID,
			Metadata:     map[string]any{"substituted": substituted, "error": cause.Error()},
		})
	}
}

func (o *Orchestrator) onIteration(simulationID string, cycleIndex int) IterationObserver {
	return func(cycle []string, iteration int, outcome ResolveOutcome) {
		idx := cycleIndex
		iter := iteration
		o.log.Debug("cycle iteration completed", "cycle_index", idx, "iteration", iter, "outcome", string(outcome))
		o.notify(observer.Event{
			Type:         observer.EventTypeIterationCompleted,
			SimulationID: simulationID,
			State:        "resolve_cycles",
			CycleIndex:   &idx,
			Iteration:    &iter,
			Message:      string(outcome),
			Metadata:     map[string]any{"cycle": cycle},
		})
	}
}

func (o *Orchestrator) notify(event observer.Event) {
	event.Timestamp = time.Now()
	o.observers.Notify(event)
}

func outcomeEventType(outcome ResolveOutcome) observer.EventType {
	switch outcome {
	case Converged:
		return observer.EventTypeCycleConverged
	case Oscillated:
		return observer.EventTypeCycleOscillated
	default:
		return observer.EventTypeCycleDidNotConverge
	}
}

// sortedKeysFloat returns m's keys sorted, for deterministic override
// application order.
func sortedKeysFloat(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
