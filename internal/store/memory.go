package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dgallion1/pagetree/internal/doctree"
)

// MemoryStore keeps the tree in process memory. It is used by tests and by
// one-shot imports that do not need persistence.
type MemoryStore struct {
	mu    sync.RWMutex
	state memState
}

type memState struct {
	seq      int64
	nodes    map[string]*doctree.Node
	created  map[string]int64
	unique   map[string]string
	children map[string][]Relationship
	mappings map[string][]*doctree.ActionMapping
}

func newMemState() memState {
	return memState{
		nodes:    make(map[string]*doctree.Node),
		created:  make(map[string]int64),
		unique:   make(map[string]string),
		children: make(map[string][]Relationship),
		mappings: make(map[string][]*doctree.ActionMapping),
	}
}

func (s memState) clone() memState {
	c := newMemState()
	c.seq = s.seq
	for id, n := range s.nodes {
		c.nodes[id] = n.Copy()
	}
	for id, seq := range s.created {
		c.created[id] = seq
	}
	for k, id := range s.unique {
		c.unique[k] = id
	}
	for p, rels := range s.children {
		c.children[p] = append([]Relationship(nil), rels...)
	}
	for e, ms := range s.mappings {
		c.mappings[e] = append([]*doctree.ActionMapping(nil), ms...)
	}
	return c
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState()}
}

func (s *MemoryStore) CreateNode(ctx context.Context, n *doctree.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(n)
}

func (s *MemoryStore) createLocked(n *doctree.Node) error {
	if n.ID == "" {
		return fmt.Errorf("create node: empty id")
	}
	if _, ok := s.state.nodes[n.ID]; ok {
		return fmt.Errorf("create node %s: %w", n.ID, ErrConflict)
	}
	c := n.Copy()
	c.ParentID = ""
	s.state.seq++
	s.state.nodes[n.ID] = c
	s.state.created[n.ID] = s.state.seq
	return nil
}

func (s *MemoryStore) CreateUniqueNode(ctx context.Context, n *doctree.Node, key string) (*doctree.Node, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.state.unique[key]; ok {
		if existing, ok := s.state.nodes[id]; ok {
			return existing.Copy(), false, nil
		}
	}
	if err := s.createLocked(n); err != nil {
		return nil, false, err
	}
	s.state.unique[key] = n.ID
	return s.state.nodes[n.ID].Copy(), true, nil
}

func (s *MemoryStore) GetNode(ctx context.Context, id string) (*doctree.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.state.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node %s: %w", id, ErrNotFound)
	}
	return n.Copy(), nil
}

func (s *MemoryStore) UpdateNode(ctx context.Context, n *doctree.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.state.nodes[n.ID]
	if !ok {
		return fmt.Errorf("update node %s: %w", n.ID, ErrNotFound)
	}
	c := n.Copy()
	c.ParentID = existing.ParentID
	c.CreatedAt = existing.CreatedAt
	s.state.nodes[n.ID] = c
	return nil
}

func (s *MemoryStore) DeleteNode(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.state.nodes[id]
	if !ok {
		return fmt.Errorf("delete node %s: %w", id, ErrNotFound)
	}
	if n.ParentID != "" {
		s.removeRelLocked(n.ParentID, id)
	}
	for _, rel := range s.state.children[id] {
		if child, ok := s.state.nodes[rel.ChildID]; ok {
			child.ParentID = ""
		}
	}
	delete(s.state.children, id)
	delete(s.state.mappings, id)
	delete(s.state.nodes, id)
	delete(s.state.created, id)
	for k, uid := range s.state.unique {
		if uid == id {
			delete(s.state.unique, k)
		}
	}
	return nil
}

func (s *MemoryStore) FindNodes(ctx context.Context, q Query) ([]*doctree.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*doctree.Node
	for _, n := range s.state.nodes {
		if q.Matches(n) {
			out = append(out, n.Copy())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return s.state.created[out[i].ID] < s.state.created[out[j].ID]
	})
	return out, nil
}

func (s *MemoryStore) Children(ctx context.Context, parentID string) ([]Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rels := append([]Relationship(nil), s.state.children[parentID]...)
	sort.SliceStable(rels, func(i, j int) bool { return rels[i].Position < rels[j].Position })
	return rels, nil
}

func (s *MemoryStore) Link(ctx context.Context, parentID, childID string, position int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.nodes[parentID]; !ok {
		return fmt.Errorf("link parent %s: %w", parentID, ErrNotFound)
	}
	child, ok := s.state.nodes[childID]
	if !ok {
		return fmt.Errorf("link child %s: %w", childID, ErrNotFound)
	}
	if child.ParentID != "" {
		return fmt.Errorf("link %s: already a child of %s: %w", childID, child.ParentID, ErrConflict)
	}
	s.state.children[parentID] = append(s.state.children[parentID], Relationship{
		ParentID: parentID,
		ChildID:  childID,
		Position: position,
	})
	child.ParentID = parentID
	return nil
}

func (s *MemoryStore) Unlink(ctx context.Context, parentID, childID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.removeRelLocked(parentID, childID) {
		return fmt.Errorf("unlink %s from %s: %w", childID, parentID, ErrNotFound)
	}
	return nil
}

func (s *MemoryStore) removeRelLocked(parentID, childID string) bool {
	rels := s.state.children[parentID]
	for i, rel := range rels {
		if rel.ChildID == childID {
			s.state.children[parentID] = append(rels[:i:i], rels[i+1:]...)
			if child, ok := s.state.nodes[childID]; ok {
				child.ParentID = ""
			}
			return true
		}
	}
	return false
}

func (s *MemoryStore) SetPosition(ctx context.Context, parentID, childID string, position int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rels := s.state.children[parentID]
	for i := range rels {
		if rels[i].ChildID == childID {
			rels[i].Position = position
			return nil
		}
	}
	return fmt.Errorf("set position of %s under %s: %w", childID, parentID, ErrNotFound)
}

func (s *MemoryStore) SaveActionMapping(ctx context.Context, m *doctree.ActionMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.nodes[m.ElementID]; !ok {
		return fmt.Errorf("save action mapping for %s: %w", m.ElementID, ErrNotFound)
	}
	c := m.Copy()
	list := s.state.mappings[m.ElementID]
	for i, existing := range list {
		if existing.ID == m.ID {
			list[i] = c
			return nil
		}
	}
	s.state.mappings[m.ElementID] = append(list, c)
	return nil
}

func (s *MemoryStore) ActionMappings(ctx context.Context, elementID string) ([]*doctree.ActionMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*doctree.ActionMapping
	for _, m := range s.state.mappings[elementID] {
		out = append(out, m.Copy())
	}
	return out, nil
}

// WithTx snapshots the store and restores the snapshot when fn fails.
// Writes from other goroutines during fn are lost on rollback.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(Store) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.state = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}
