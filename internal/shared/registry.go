// Package shared manages the hidden document that holds named templates
// and shared components.
package shared

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/dgallion1/pagetree/internal/doctree"
	"github.com/dgallion1/pagetree/internal/store"
)

// HiddenDocumentName names the container of all shared components.
const HiddenDocumentName = "__ShadowDocument__"

const hiddenDocumentKey = "shadow-document"

// Lookup selects which top-level nodes FindByName considers.
type Lookup int

const (
	// LookupTemplate matches template nodes.
	LookupTemplate Lookup = iota
	// LookupComponent matches shared components: nodes that are not
	// themselves references to another shared component.
	LookupComponent
)

func (l Lookup) String() string {
	if l == LookupTemplate {
		return "template"
	}
	return "component"
}

// Registry finds and creates shared components.
type Registry struct {
	store store.Store
	log   *slog.Logger
}

// NewRegistry creates a Registry over s.
func NewRegistry(s store.Store, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Registry{store: s, log: log}
}

// HiddenDocument returns the shared component container, creating it on
// first use. The store's uniqueness guarantee keeps concurrent callers from
// creating two.
func (r *Registry) HiddenDocument(ctx context.Context) (*doctree.Node, error) {
	doc := doctree.New(doctree.KindShadowDocument)
	doc.Name = HiddenDocumentName
	got, created, err := r.store.CreateUniqueNode(ctx, doc, hiddenDocumentKey)
	if err != nil {
		return nil, fmt.Errorf("get hidden document: %w", err)
	}
	if created {
		r.log.Info("created hidden document", "id", got.ID)
	}
	return got, nil
}

// FindByName returns the first top-level node of the hidden document named
// name that satisfies the lookup kind, or nil when there is none.
func (r *Registry) FindByName(ctx context.Context, name string, kind Lookup) (*doctree.Node, error) {
	if name == "" {
		return nil, nil
	}
	doc, err := r.HiddenDocument(ctx)
	if err != nil {
		return nil, err
	}
	candidates, err := r.store.FindNodes(ctx, store.Query{
		DocumentID: doc.ID,
		Name:       name,
		TopLevel:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("find %s %q: %w", kind, name, err)
	}
	for _, n := range candidates {
		switch kind {
		case LookupTemplate:
			if n.Kind == doctree.KindTemplate {
				return n, nil
			}
		case LookupComponent:
			if n.SharedComponentID == "" {
				return n, nil
			}
		}
	}
	return nil, nil
}

// Get returns the node with id, or nil when it does not exist.
func (r *Registry) Get(ctx context.Context, id string) (*doctree.Node, error) {
	n, err := r.store.GetNode(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get shared component %s: %w", id, err)
	}
	return n, nil
}

// IsShared reports whether n lives in the hidden document.
func (r *Registry) IsShared(ctx context.Context, n *doctree.Node) (bool, error) {
	doc, err := r.HiddenDocument(ctx)
	if err != nil {
		return false, err
	}
	return n.DocumentID == doc.ID, nil
}

// Create stores n as a new top-level node of the hidden document.
func (r *Registry) Create(ctx context.Context, n *doctree.Node) error {
	doc, err := r.HiddenDocument(ctx)
	if err != nil {
		return err
	}
	n.DocumentID = doc.ID
	n.ParentID = ""
	if err := r.store.CreateNode(ctx, n); err != nil {
		return fmt.Errorf("create shared %s: %w", n.Kind, err)
	}
	r.log.Debug("created shared node", "kind", n.Kind, "name", n.Name, "id", n.ID)
	return nil
}

// SyncedNodes returns the nodes pointing at the shared node id.
func (r *Registry) SyncedNodes(ctx context.Context, id string) ([]*doctree.Node, error) {
	nodes, err := r.store.FindNodes(ctx, store.Query{SharedComponentID: id})
	if err != nil {
		return nil, fmt.Errorf("synced nodes of %s: %w", id, err)
	}
	return nodes, nil
}

// Rename sets name on the shared node id and on every node synced to it.
// Name is the one property kept in sync automatically.
func (r *Registry) Rename(ctx context.Context, id, name string) error {
	n, err := r.store.GetNode(ctx, id)
	if err != nil {
		return fmt.Errorf("rename %s: %w", id, err)
	}
	n.Name = name
	if err := r.store.UpdateNode(ctx, n); err != nil {
		return fmt.Errorf("rename %s: %w", id, err)
	}
	synced, err := r.SyncedNodes(ctx, id)
	if err != nil {
		return err
	}
	for _, s := range synced {
		s.Name = name
		if err := r.store.UpdateNode(ctx, s); err != nil {
			return fmt.Errorf("rename synced node %s: %w", s.ID, err)
		}
	}
	return nil
}
