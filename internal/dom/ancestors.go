package dom

import (
	"context"

	"github.com/dgallion1/pagetree/internal/doctree"
	"github.com/dgallion1/pagetree/internal/store"
)

// Ancestors returns the parent chain of n, nearest first.
func (m *Manager) Ancestors(ctx context.Context, n *doctree.Node) ([]*doctree.Node, error) {
	var out []*doctree.Node
	cur, err := m.store.GetNode(ctx, n.ID)
	if err != nil {
		return nil, wrapStore("ancestors", err)
	}
	seen := map[string]bool{cur.ID: true}
	for cur.ParentID != "" && !seen[cur.ParentID] {
		parent, err := m.store.GetNode(ctx, cur.ParentID)
		if err != nil {
			return nil, wrapStore("ancestors", err)
		}
		seen[parent.ID] = true
		out = append(out, parent)
		cur = parent
	}
	return out, nil
}

// ClosestPage returns the nearest page above n. A shared component has no
// page of its own; its synced nodes are consulted instead. Returns nil when
// there is none.
func (m *Manager) ClosestPage(ctx context.Context, n *doctree.Node) (*doctree.Node, error) {
	return m.closest(ctx, n, func(a *doctree.Node) bool { return a.Kind == doctree.KindPage }, map[string]bool{})
}

// ClosestTemplate returns the nearest template above n, consulting synced
// nodes like ClosestPage. Returns nil when there is none.
func (m *Manager) ClosestTemplate(ctx context.Context, n *doctree.Node) (*doctree.Node, error) {
	return m.closest(ctx, n, func(a *doctree.Node) bool { return a.Kind == doctree.KindTemplate }, map[string]bool{})
}

func (m *Manager) closest(ctx context.Context, n *doctree.Node, match func(*doctree.Node) bool, visited map[string]bool) (*doctree.Node, error) {
	if visited[n.ID] {
		return nil, nil
	}
	visited[n.ID] = true

	ancestors, err := m.Ancestors(ctx, n)
	if err != nil {
		return nil, err
	}
	for _, a := range ancestors {
		if match(a) {
			return a, nil
		}
	}

	// Chain exhausted: walk up from every node synced to a node on the chain.
	chain := append([]*doctree.Node{n}, ancestors...)
	for _, c := range chain {
		synced, err := m.SyncedNodes(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		for _, s := range synced {
			if match(s) {
				return s, nil
			}
			found, err := m.closest(ctx, s, match, visited)
			if err != nil {
				return nil, err
			}
			if found != nil {
				return found, nil
			}
		}
	}
	return nil, nil
}

// SyncedNodes returns the nodes whose shared component pointer is id.
func (m *Manager) SyncedNodes(ctx context.Context, id string) ([]*doctree.Node, error) {
	nodes, err := m.store.FindNodes(ctx, store.Query{SharedComponentID: id})
	if err != nil {
		return nil, wrapStore("synced nodes", err)
	}
	return nodes, nil
}
