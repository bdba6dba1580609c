// Package dom maintains the ordered child lists of persisted document
// nodes. Order lives only in relationship positions: after every mutation
// the positions under a parent are exactly 0..n-1.
package dom

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/dgallion1/pagetree/internal/doctree"
	"github.com/dgallion1/pagetree/internal/store"
)

// Manager performs validated tree mutations against a store.
type Manager struct {
	store store.Store
	auth  Authorizer
	rules HierarchyRules
	log   *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithAuthorizer replaces the default AllowAll authorizer.
func WithAuthorizer(a Authorizer) Option { return func(m *Manager) { m.auth = a } }

// WithHierarchy replaces the default hierarchy rules.
func WithHierarchy(r HierarchyRules) Option { return func(m *Manager) { m.rules = r } }

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option { return func(m *Manager) { m.log = log } }

// NewManager creates a Manager over s.
func NewManager(s store.Store, opts ...Option) *Manager {
	m := &Manager{
		store: s,
		auth:  AllowAll{},
		rules: DefaultHierarchy{},
	}
	for _, o := range opts {
		o(m)
	}
	if m.log == nil {
		m.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return m
}

// Store returns the store the manager writes to.
func (m *Manager) Store() store.Store { return m.store }

// AppendChild makes child the last child of parent, detaching it from its
// current parent first.
func (m *Manager) AppendChild(ctx context.Context, parent, child *doctree.Node) error {
	return m.appendChild(ctx, parent, child, false)
}

// AdoptChild is AppendChild for a child that may belong to another
// document. Once every check passes, the child and its subtree move into
// parent's document.
func (m *Manager) AdoptChild(ctx context.Context, parent, child *doctree.Node) error {
	return m.appendChild(ctx, parent, child, true)
}

func (m *Manager) appendChild(ctx context.Context, parent, child *doctree.Node, foreign bool) error {
	adopt, err := m.validate(ctx, parent, foreign, child)
	if err != nil {
		return err
	}
	if err := m.adoptAll(ctx, parent, adopt); err != nil {
		return err
	}
	if err := m.detach(ctx, child); err != nil {
		return err
	}
	ids, err := m.childIDs(ctx, parent.ID)
	if err != nil {
		return err
	}
	if err := m.store.Link(ctx, parent.ID, child.ID, len(ids)); err != nil {
		return wrapStore("append child", err)
	}
	child.ParentID = parent.ID
	return m.Renumber(ctx, parent.ID)
}

// InsertBefore inserts newChild immediately before ref. A nil ref appends.
func (m *Manager) InsertBefore(ctx context.Context, parent, newChild, ref *doctree.Node) error {
	if ref == nil {
		return m.AppendChild(ctx, parent, newChild)
	}
	return m.insertAt(ctx, parent, newChild, ref, 0)
}

// InsertAfter inserts newChild immediately after ref. A nil ref appends.
func (m *Manager) InsertAfter(ctx context.Context, parent, newChild, ref *doctree.Node) error {
	if ref == nil {
		return m.AppendChild(ctx, parent, newChild)
	}
	return m.insertAt(ctx, parent, newChild, ref, 1)
}

func (m *Manager) insertAt(ctx context.Context, parent, newChild, ref *doctree.Node, offset int) error {
	adopt, err := m.validate(ctx, parent, false, newChild, ref)
	if err != nil {
		return err
	}
	if err := m.requireChild(ctx, parent, ref); err != nil {
		return err
	}
	if newChild.ID == ref.ID {
		return nil
	}
	if err := m.adoptAll(ctx, parent, adopt); err != nil {
		return err
	}
	if err := m.detach(ctx, newChild); err != nil {
		return err
	}

	ids, err := m.childIDs(ctx, parent.ID)
	if err != nil {
		return err
	}
	at := indexOf(ids, ref.ID) + offset

	order := make([]string, 0, len(ids)+1)
	order = append(order, ids[:at]...)
	order = append(order, newChild.ID)
	order = append(order, ids[at:]...)

	if err := m.store.Link(ctx, parent.ID, newChild.ID, at); err != nil {
		return wrapStore("insert child", err)
	}
	newChild.ParentID = parent.ID
	return m.reorder(ctx, parent.ID, order)
}

// ReplaceChild puts newChild at oldChild's position and detaches oldChild.
func (m *Manager) ReplaceChild(ctx context.Context, parent, newChild, oldChild *doctree.Node) error {
	adopt, err := m.validate(ctx, parent, false, newChild, oldChild)
	if err != nil {
		return err
	}
	if err := m.requireChild(ctx, parent, oldChild); err != nil {
		return err
	}
	if newChild.ID == oldChild.ID {
		return nil
	}
	if err := m.adoptAll(ctx, parent, adopt); err != nil {
		return err
	}
	if err := m.detach(ctx, newChild); err != nil {
		return err
	}

	ids, err := m.childIDs(ctx, parent.ID)
	if err != nil {
		return err
	}
	at := indexOf(ids, oldChild.ID)
	if err := m.store.Unlink(ctx, parent.ID, oldChild.ID); err != nil {
		return wrapStore("replace child", err)
	}
	oldChild.ParentID = ""
	if err := m.store.Link(ctx, parent.ID, newChild.ID, at); err != nil {
		return wrapStore("replace child", err)
	}
	newChild.ParentID = parent.ID
	ids[at] = newChild.ID
	return m.reorder(ctx, parent.ID, ids)
}

// RemoveChild detaches child from parent. The child node is kept.
func (m *Manager) RemoveChild(ctx context.Context, parent, child *doctree.Node) error {
	if !m.auth.CanWrite(ctx, parent) {
		return doctree.NewDOMError(doctree.NoModificationAllowedErr, "no write permission on %s", parent)
	}
	if err := m.requireChild(ctx, parent, child); err != nil {
		return err
	}
	if err := m.store.Unlink(ctx, parent.ID, child.ID); err != nil {
		return wrapStore("remove child", err)
	}
	child.ParentID = ""
	return m.Renumber(ctx, parent.ID)
}

// Children returns the children of parent in position order.
func (m *Manager) Children(ctx context.Context, parentID string) ([]*doctree.Node, error) {
	rels, err := m.store.Children(ctx, parentID)
	if err != nil {
		return nil, wrapStore("list children", err)
	}
	out := make([]*doctree.Node, 0, len(rels))
	for _, r := range rels {
		n, err := m.store.GetNode(ctx, r.ChildID)
		if err != nil {
			return nil, wrapStore("list children", err)
		}
		out = append(out, n)
	}
	return out, nil
}

// Renumber rewrites the positions under parentID to 0..n-1, keeping the
// current order.
func (m *Manager) Renumber(ctx context.Context, parentID string) error {
	ids, err := m.childIDs(ctx, parentID)
	if err != nil {
		return err
	}
	return m.reorder(ctx, parentID, ids)
}

// DeleteSubtree deletes n and every node below it.
func (m *Manager) DeleteSubtree(ctx context.Context, n *doctree.Node) error {
	if !m.auth.CanWrite(ctx, n) {
		return doctree.NewDOMError(doctree.NoModificationAllowedErr, "no write permission on %s", n)
	}
	current, err := m.store.GetNode(ctx, n.ID)
	if err != nil {
		return wrapStore("delete subtree", err)
	}
	if err := m.deleteRecursive(ctx, n.ID); err != nil {
		return err
	}
	m.log.Debug("deleted subtree", "node", n.ID, "parent", current.ParentID)
	if current.ParentID != "" {
		return m.Renumber(ctx, current.ParentID)
	}
	return nil
}

func (m *Manager) deleteRecursive(ctx context.Context, id string) error {
	ids, err := m.childIDs(ctx, id)
	if err != nil {
		return err
	}
	for _, c := range ids {
		if err := m.deleteRecursive(ctx, c); err != nil {
			return err
		}
	}
	if err := m.store.DeleteNode(ctx, id); err != nil {
		return wrapStore("delete node", err)
	}
	return nil
}

// validate runs the permission, same-document and hierarchy checks in that
// order without writing anything. nodes[0] is the node being inserted;
// further nodes are references. It returns the nodes that have to be
// adopted into parent's document before the mutation. With foreign set,
// nodes[0] may come from another document.
func (m *Manager) validate(ctx context.Context, parent *doctree.Node, foreign bool, nodes ...*doctree.Node) ([]*doctree.Node, error) {
	if !m.auth.CanWrite(ctx, parent) {
		return nil, doctree.NewDOMError(doctree.NoModificationAllowedErr, "no write permission on %s", parent)
	}
	var adopt []*doctree.Node
	for i, n := range nodes {
		if n == nil {
			continue
		}
		move, err := checkSameDocument(parent, n, foreign && i == 0)
		if err != nil {
			return nil, err
		}
		if move {
			adopt = append(adopt, n)
		}
	}
	child := nodes[0]
	if err := m.rules.Check(parent, child); err != nil {
		return nil, err
	}
	if err := m.checkCycle(ctx, parent, child); err != nil {
		return nil, err
	}
	return adopt, nil
}

// checkSameDocument reports whether n has to move into parent's document.
// Nodes without a document always move; nodes of another document only
// when foreign is set.
func checkSameDocument(parent, n *doctree.Node, foreign bool) (bool, error) {
	doc := parent.DocumentOf()
	if doc == "" || n.Kind.IsDocument() || n.DocumentID == doc {
		return false, nil
	}
	if n.DocumentID == "" || foreign {
		return true, nil
	}
	return false, doctree.NewDOMError(doctree.WrongDocumentErr, "%s belongs to document %s, not %s", n, n.DocumentID, doc)
}

func (m *Manager) adoptAll(ctx context.Context, parent *doctree.Node, nodes []*doctree.Node) error {
	doc := parent.DocumentOf()
	for _, n := range nodes {
		if err := m.adopt(ctx, n, doc); err != nil {
			return err
		}
	}
	return nil
}

// adopt moves n and its subtree into document doc.
func (m *Manager) adopt(ctx context.Context, n *doctree.Node, doc string) error {
	n.DocumentID = doc
	stored, err := m.store.GetNode(ctx, n.ID)
	if err != nil {
		return wrapStore("adopt node", err)
	}
	stored.DocumentID = doc
	if err := m.store.UpdateNode(ctx, stored); err != nil {
		return wrapStore("adopt node", err)
	}
	children, err := m.Children(ctx, n.ID)
	if err != nil {
		return err
	}
	for _, c := range children {
		if c.DocumentID == doc {
			continue
		}
		if err := m.adopt(ctx, c, doc); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) checkCycle(ctx context.Context, parent, child *doctree.Node) error {
	if parent.ID == child.ID {
		return doctree.NewDOMError(doctree.HierarchyRequestErr, "%s cannot contain itself", child)
	}
	cur := parent.ParentID
	if stored, err := m.store.GetNode(ctx, parent.ID); err == nil {
		cur = stored.ParentID
	}
	for cur != "" {
		if cur == child.ID {
			return doctree.NewDOMError(doctree.HierarchyRequestErr, "%s is an ancestor of %s", child, parent)
		}
		n, err := m.store.GetNode(ctx, cur)
		if err != nil {
			return wrapStore("check ancestors", err)
		}
		cur = n.ParentID
	}
	return nil
}

func (m *Manager) requireChild(ctx context.Context, parent, ref *doctree.Node) error {
	ids, err := m.childIDs(ctx, parent.ID)
	if err != nil {
		return err
	}
	if indexOf(ids, ref.ID) < 0 {
		return doctree.NewDOMError(doctree.NotFoundErr, "%s is not a child of %s", ref, parent)
	}
	return nil
}

// detach unlinks n from its current parent and renumbers that parent.
func (m *Manager) detach(ctx context.Context, n *doctree.Node) error {
	stored, err := m.store.GetNode(ctx, n.ID)
	if err != nil {
		return wrapStore("detach node", err)
	}
	if stored.ParentID == "" {
		n.ParentID = ""
		return nil
	}
	if err := m.store.Unlink(ctx, stored.ParentID, n.ID); err != nil {
		return wrapStore("detach node", err)
	}
	n.ParentID = ""
	return m.Renumber(ctx, stored.ParentID)
}

func (m *Manager) childIDs(ctx context.Context, parentID string) ([]string, error) {
	rels, err := m.store.Children(ctx, parentID)
	if err != nil {
		return nil, wrapStore("list children", err)
	}
	ids := make([]string, len(rels))
	for i, r := range rels {
		ids[i] = r.ChildID
	}
	return ids, nil
}

// reorder sets position i on the relationship to ids[i].
func (m *Manager) reorder(ctx context.Context, parentID string, ids []string) error {
	rels, err := m.store.Children(ctx, parentID)
	if err != nil {
		return wrapStore("renumber", err)
	}
	current := make(map[string]int, len(rels))
	for _, r := range rels {
		current[r.ChildID] = r.Position
	}
	for i, id := range ids {
		if pos, ok := current[id]; ok && pos == i {
			continue
		}
		if err := m.store.SetPosition(ctx, parentID, id, i); err != nil {
			return wrapStore("renumber", err)
		}
	}
	return nil
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

// wrapStore turns a store failure into the client-facing DOM error kind.
func wrapStore(op string, err error) error {
	var de *doctree.DOMError
	if errors.As(err, &de) {
		return err
	}
	code := doctree.InvalidStateErr
	switch {
	case errors.Is(err, store.ErrNotFound):
		code = doctree.NotFoundErr
	case errors.Is(err, store.ErrConflict):
		code = doctree.HierarchyRequestErr
	}
	return &doctree.DOMError{Code: code, Msg: op, Err: fmt.Errorf("store: %w", err)}
}
