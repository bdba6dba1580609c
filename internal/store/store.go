// Package store persists document nodes and the ordered parent/child
// relationships between them.
package store

import (
	"context"
	"errors"

	"github.com/dgallion1/pagetree/internal/doctree"
)

var (
	// ErrNotFound is returned when a node or relationship does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a uniqueness constraint would be violated.
	ErrConflict = errors.New("conflict")
)

// Relationship is one parent to child edge. Position orders the children
// of a parent.
type Relationship struct {
	ParentID string
	ChildID  string
	Position int
}

// Query selects nodes. Zero-valued fields do not filter.
type Query struct {
	DocumentID        string
	Kinds             []doctree.Kind
	Name              string
	Path              string
	Checksum          string
	SharedComponentID string
	TopLevel          bool // only nodes without a parent

	// PropertyKey and PropertyValue match nodes whose property formats to the value.
	PropertyKey   string
	PropertyValue string
}

// Matches reports whether n satisfies q.
func (q Query) Matches(n *doctree.Node) bool {
	if q.DocumentID != "" && n.DocumentID != q.DocumentID {
		return false
	}
	if len(q.Kinds) > 0 {
		found := false
		for _, k := range q.Kinds {
			if n.Kind == k {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.Name != "" && n.Name != q.Name {
		return false
	}
	if q.Path != "" && n.Path != q.Path {
		return false
	}
	if q.Checksum != "" && n.Checksum != q.Checksum {
		return false
	}
	if q.SharedComponentID != "" && n.SharedComponentID != q.SharedComponentID {
		return false
	}
	if q.TopLevel && n.ParentID != "" {
		return false
	}
	if q.PropertyKey != "" {
		if !n.Props.Has(q.PropertyKey) || n.Props.String(q.PropertyKey) != q.PropertyValue {
			return false
		}
	}
	return true
}

// Store is the persistence boundary of the document tree. Nodes handed to
// and returned from a Store are copies; callers own them.
//
// ParentID on a node is owned by the store: Link sets it, Unlink and
// DeleteNode clear it, and UpdateNode leaves it unchanged.
type Store interface {
	CreateNode(ctx context.Context, n *doctree.Node) error
	// CreateUniqueNode creates n unless a node was already created under key,
	// in which case that node is returned with created set to false.
	CreateUniqueNode(ctx context.Context, n *doctree.Node, key string) (node *doctree.Node, created bool, err error)
	GetNode(ctx context.Context, id string) (*doctree.Node, error)
	UpdateNode(ctx context.Context, n *doctree.Node) error
	// DeleteNode removes the node, its relationships and its action mappings.
	// Former children are left without a parent.
	DeleteNode(ctx context.Context, id string) error
	// FindNodes returns matching nodes in creation order.
	FindNodes(ctx context.Context, q Query) ([]*doctree.Node, error)

	// Children returns the relationships of parentID ordered by position.
	Children(ctx context.Context, parentID string) ([]Relationship, error)
	// Link creates a parent to child relationship. A child has at most one
	// parent; linking an attached child returns ErrConflict.
	Link(ctx context.Context, parentID, childID string, position int) error
	Unlink(ctx context.Context, parentID, childID string) error
	SetPosition(ctx context.Context, parentID, childID string, position int) error

	SaveActionMapping(ctx context.Context, m *doctree.ActionMapping) error
	ActionMappings(ctx context.Context, elementID string) ([]*doctree.ActionMapping, error)

	// WithTx runs fn as one unit of work. When fn returns an error nothing
	// it wrote is kept. fn must use the Store it is given.
	WithTx(ctx context.Context, fn func(Store) error) error
}
