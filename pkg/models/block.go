package models

// Block is a named grouping of attributes. It is purely organizational: a
// Block does not constrain dependencies, and cross-block dependencies are
// allowed.
type Block struct {
	ID         string
	Name       string
	attributes map[string]*Attribute
	order      []string // insertion order, for deterministic iteration
}

// NewBlock creates an empty block.
func NewBlock(id, name string) *Block {
	return &Block{
		ID:         id,
		Name:       name,
		attributes: make(map[string]*Attribute),
	}
}

// AddAttribute registers an attribute under this block. Enforces id
// uniqueness within the block and the attribute's kind invariants; global
// uniqueness across blocks is enforced by the caller at Simulation.AddBlock
// time (§4.5).
func (b *Block) AddAttribute(attr *Attribute) error {
	if err := attr.Validate(); err != nil {
		return err
	}

	if _, exists := b.attributes[attr.ID]; exists {
		return &ConfigurationError{AttributeID: attr.ID, Op: "add_attribute", Err: ErrDuplicateID}
	}

	b.attributes[attr.ID] = attr
	b.order = append(b.order, attr.ID)
	return nil
}

// Get returns the attribute with the given id, if present in this block.
func (b *Block) Get(id string) (*Attribute, bool) {
	attr, ok := b.attributes[id]
	return attr, ok
}

// Attributes returns the block's attributes in the order they were added.
func (b *Block) Attributes() []*Attribute {
	result := make([]*Attribute, 0, len(b.order))
	for _, id := range b.order {
		result = append(result, b.attributes[id])
	}
	return result
}

// Len returns the number of attributes in the block.
func (b *Block) Len() int {
	return len(b.order)
}
