package models

// AttributeKind distinguishes a primary input from a derived value.
type AttributeKind string

const (
	// Input attributes carry a value set at construction or by a scenario
	// override; they never run a calculate function.
	Input AttributeKind = "input"

	// Calculated attributes derive their value from their declared
	// dependencies via Calculate or CalculateExpr.
	Calculated AttributeKind = "calculated"
)

// CalculateFunc computes a Calculated attribute's value from its
// dependencies' current values and the attribute's own metadata. Outside a
// cycle, deps holds every declared dependency, with one that cannot be
// resolved substituted by 0 (see §7); inside the iterative cycle solver,
// deps is a snapshot of every attribute in the model that has a value, and
// attributes still Null are absent from it.
// Implementations must be pure and must not block; a panic or error is
// recoverable but logged and replaced with a kind-based default.
type CalculateFunc func(deps map[string]float64, metadata map[string]any) (float64, error)

// Attribute is a single named value in the model: either a given Input or a
// derived Calculated value.
type Attribute struct {
	ID   string
	Name string
	Kind AttributeKind
	// Value holds the attribute's current value. Null until an Input is
	// seeded/overridden or a Calculated attribute is first evaluated.
	Value Value
	// Dependencies is the ordered, declared list of attribute ids this
	// attribute needs to compute its value. Ids that are never registered
	// anywhere in the simulation are logged and dropped from the
	// dependency graph at registration time, but remain here verbatim.
	Dependencies []string
	// Calculate is the native Go calculation function for a Calculated
	// attribute. Mutually usable alongside CalculateExpr; if both are set
	// Calculate takes precedence.
	Calculate CalculateFunc
	// CalculateExpr is an optional expr-lang expression evaluated instead
	// of Calculate when Calculate is nil. The expression sees "deps" (a
	// map[string]float64) and "metadata" (a map[string]any) and must
	// evaluate to a number.
	CalculateExpr string
	// Metadata is opaque to the engine; it is passed through to Calculate
	// and to CalculateExpr verbatim.
	Metadata map[string]any
}

// NewInputAttribute constructs an Input attribute with an initial value.
func NewInputAttribute(id, name string, initial float64) *Attribute {
	return &Attribute{
		ID:    id,
		Name:  name,
		Kind:  Input,
		Value: NumberValue(initial),
	}
}

// NewCalculatedAttribute constructs a Calculated attribute with calc as its
// native calculation; CalculateExpr can be set on the result instead of (or
// as well as) calc. Validate enforces that at least one calculation means
// is present.
func NewCalculatedAttribute(id, name string, dependencies []string, calc CalculateFunc) *Attribute {
	return &Attribute{
		ID:           id,
		Name:         name,
		Kind:         Calculated,
		Value:        NullValue,
		Dependencies: dependencies,
		Calculate:    calc,
	}
}

// HasCalculation reports whether the attribute carries a native function or
// an expression to derive its value.
func (a *Attribute) HasCalculation() bool {
	return a.Calculate != nil || a.CalculateExpr != ""
}

// Validate enforces the kind invariants from §3: Inputs never carry a
// calculation; Calculated attributes always do.
func (a *Attribute) Validate() error {
	if a.ID == "" {
		return &ConfigurationError{AttributeID: a.ID, Op: "validate", Err: ErrAttributeNotFound}
	}

	switch a.Kind {
	case Input:
		if a.HasCalculation() {
			return &ConfigurationError{
				AttributeID: a.ID,
				Op:          "validate",
				Err:         ErrInputHasCalculation,
			}
		}
	case Calculated:
		if !a.HasCalculation() {
			return &ConfigurationError{AttributeID: a.ID, Op: "validate", Err: ErrCalculatedNeedsFunction}
		}
	default:
		return &ConfigurationError{AttributeID: a.ID, Op: "validate", Err: ErrCalculatedNeedsFunction}
	}

	return nil
}
