package engine

import (
	"sort"

	"github.com/attrflow/attrflow/pkg/models"
)

// AttributeRegistry is a flat lookup from attribute id to owning block and
// attribute across every block registered with a simulation. Built lazily
// as blocks are added; enforces global id uniqueness (§4.1, §4.5).
type AttributeRegistry struct {
	byID    map[string]*models.Attribute
	blockOf map[string]string
	blocks  []*models.Block
}

// NewAttributeRegistry creates an empty registry.
func NewAttributeRegistry() *AttributeRegistry {
	return &AttributeRegistry{
		byID:    make(map[string]*models.Attribute),
		blockOf: make(map[string]string),
	}
}

// AddBlock registers every attribute in block. Fails with a
// *models.ConfigurationError wrapping models.ErrDuplicateID if any
// attribute id already exists in the registry — global uniqueness, not
// just within the block.
func (r *AttributeRegistry) AddBlock(block *models.Block) error {
	for _, attr := range block.Attributes() {
		if _, exists := r.byID[attr.ID]; exists {
			return &models.ConfigurationError{AttributeID: attr.ID, Op: "add_block", Err: models.ErrDuplicateID}
		}
	}

	for _, attr := range block.Attributes() {
		r.byID[attr.ID] = attr
		r.blockOf[attr.ID] = block.ID
	}
	r.blocks = append(r.blocks, block)

	return nil
}

// Find returns the attribute with the given id, in O(1).
func (r *AttributeRegistry) Find(id string) (*models.Attribute, bool) {
	attr, ok := r.byID[id]
	return attr, ok
}

// BlockOf returns the id of the block that owns attributeID.
func (r *AttributeRegistry) BlockOf(attributeID string) (string, bool) {
	id, ok := r.blockOf[attributeID]
	return id, ok
}

// All returns every registered attribute, sorted by id for deterministic
// iteration.
func (r *AttributeRegistry) All() []*models.Attribute {
	attrs := make([]*models.Attribute, 0, len(r.byID))
	for _, attr := range r.byID {
		attrs = append(attrs, attr)
	}
	sort.Slice(attrs, func(i, j int) bool { return attrs[i].ID < attrs[j].ID })
	return attrs
}

// Len returns the total number of registered attributes across all blocks.
func (r *AttributeRegistry) Len() int {
	return len(r.byID)
}

// BlockCount returns the number of registered blocks.
func (r *AttributeRegistry) BlockCount() int {
	return len(r.blocks)
}

// UnknownDependencyFunc is invoked once for every declared dependency that
// does not resolve to a registered attribute, so the caller can log it at
// the appropriate level.
type UnknownDependencyFunc func(attributeID, dependencyID string)

// BuildGraph constructs the dependency graph from every currently
// registered attribute. A dependency id that does not resolve to a
// registered attribute is reported via onUnknown (may be nil) and excluded
// from the graph, per §3: it remains in the attribute's declared
// Dependencies for documentation but creates no edge.
func (r *AttributeRegistry) BuildGraph(onUnknown UnknownDependencyFunc) *DependencyGraph {
	g := NewDependencyGraph()

	for _, attr := range r.All() {
		g.AddNode(attr.ID)
		for _, dep := range attr.Dependencies {
			if _, ok := r.byID[dep]; !ok {
				if onUnknown != nil {
					onUnknown(attr.ID, dep)
				}
				continue
			}
			g.AddEdge(dep, attr.ID)
		}
	}

	return g
}
