// Package attrflow is a scenario-driven attribute evaluation engine for a
// small industrial digital-twin domain: named attributes grouped into
// blocks, some given as inputs and others derived by a user-supplied pure
// function, evaluated under a dependency-resolution policy that also
// resolves cyclic dependencies via bounded iterative convergence.
package attrflow

import (
	"github.com/google/uuid"

	"github.com/attrflow/attrflow/internal/config"
	"github.com/attrflow/attrflow/internal/engine"
	"github.com/attrflow/attrflow/internal/engine/conditioncache"
	"github.com/attrflow/attrflow/internal/infrastructure/logger"
	"github.com/attrflow/attrflow/internal/observer"
	"github.com/attrflow/attrflow/pkg/models"
)

// defaultExprCacheSize bounds the compiled-expression LRU a Simulation
// creates for itself when the caller does not supply one via Option.
const defaultExprCacheSize = 256

// Simulation is the public entry point (§6): register blocks, optionally
// override scenario inputs, then Run to get a ResultRecord. A Simulation
// owns its own Attribute/Block state; running two Simulations concurrently
// is safe as long as each owns disjoint state (§5).
type Simulation struct {
	id        string
	registry  *engine.AttributeRegistry
	overrides *models.ScenarioStore
	cache     *conditioncache.Cache
	cfg       config.SolverConfig
	log       *logger.Logger
	observers *observer.ObserverManager

	lastStatus models.ResultStatus
}

// Option configures a Simulation at construction time.
type Option func(*Simulation)

// WithLogger overrides the package default logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Simulation) { s.log = l }
}

// WithSolverConfig overrides the default iterative cycle solver tuning.
func WithSolverConfig(cfg config.SolverConfig) Option {
	return func(s *Simulation) { s.cfg = cfg }
}

// WithObserver registers obs on the Simulation's observer manager.
// Registration errors (a duplicate name) are swallowed here since Option
// values cannot return an error; call RegisterObserver directly to handle
// that case.
func WithObserver(obs observer.Observer) Option {
	return func(s *Simulation) { _ = s.observers.Register(obs) }
}

// New creates a Simulation. If id is empty, a random id is generated via
// uuid.NewString().
func New(id string, opts ...Option) *Simulation {
	if id == "" {
		id = uuid.NewString()
	}

	s := &Simulation{
		id:         id,
		registry:   engine.NewAttributeRegistry(),
		overrides:  models.NewScenarioStore(),
		cache:      conditioncache.New(defaultExprCacheSize),
		cfg:        config.SolverConfig{MaxIterations: 10, ConvergenceThreshold: 0.05, OscillationWindow: 4},
		log:        logger.Default(),
		observers:  observer.NewObserverManager(),
		lastStatus: models.ResultStatusFailed,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// ID returns the simulation's id.
func (s *Simulation) ID() string {
	return s.id
}

// AddBlock registers block's attributes. Fails if any attribute id already
// exists anywhere in the simulation (§4.5); registration is all-or-nothing.
func (s *Simulation) AddBlock(block *models.Block) error {
	return s.registry.AddBlock(block)
}

// SetScenarioOverride records value as the override for attributeID,
// applied to an Input attribute the next time Run is called. Overriding an
// id that turns out to be unknown or Calculated is logged and ignored at
// Run time, not here.
func (s *Simulation) SetScenarioOverride(attributeID string, value float64) {
	s.overrides.Set(attributeID, value)
}

// ClearScenarioOverrides removes every recorded override.
func (s *Simulation) ClearScenarioOverrides() {
	s.overrides.Clear()
}

// RegisterObserver adds obs to the simulation's observer manager, returning
// an error if an observer with the same name is already registered.
func (s *Simulation) RegisterObserver(obs observer.Observer) error {
	return s.observers.Register(obs)
}

// Run executes one full evaluation pass and returns the resulting
// ResultRecord (§4.3, §6). Attribute values on every registered Block are
// mutated as a side effect; Input attributes that an override targeted get
// their pre-run value back when Run returns.
func (s *Simulation) Run() *models.ResultRecord {
	orch := engine.NewOrchestrator(s.registry, s.cache, s.cfg, s.log, s.observers)
	result := orch.Run(s.id, s.overrides)
	s.lastStatus = result.Status
	return result
}

// Summary reports the simulation's static shape plus its last run's status
// (§6, SPEC_FULL supplement 1): total blocks/attributes, how many scenario
// overrides are currently recorded, the flattened dependency edge count,
// and the status of the most recent Run (or ResultStatusFailed if Run has
// never been called).
func (s *Simulation) Summary() Summary {
	graph := s.registry.BuildGraph(nil)
	return Summary{
		SimulationID:            s.id,
		TotalBlocks:             s.registry.BlockCount(),
		TotalAttributes:         s.registry.Len(),
		ScenarioOverrides:       s.overrides.Len(),
		DependencyRelationships: graph.EdgeCount(),
		Status:                  s.lastStatus,
	}
}

// Summary is the JSON-serializable shape Simulation.Summary returns.
type Summary struct {
	SimulationID            string              `json:"simulation_id"`
	TotalBlocks             int                 `json:"total_blocks"`
	TotalAttributes         int                 `json:"total_attributes"`
	ScenarioOverrides       int                 `json:"scenario_overrides"`
	DependencyRelationships int                 `json:"dependency_relationships"`
	Status                  models.ResultStatus `json:"status"`
}
