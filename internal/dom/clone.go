package dom

import (
	"context"

	"github.com/dgallion1/pagetree/internal/doctree"
)

// cloneDenylist names properties that identify a node and must never be
// copied onto a clone. The tag is carried by Node.Tag, so a "tag" property
// is dropped as well.
var cloneDenylist = map[string]bool{
	"id":                    true,
	"uuid":                  true,
	"type":                  true,
	"tag":                   true,
	"createdBy":             true,
	"createdDate":           true,
	"lastModifiedDate":      true,
	"data-structr-id":       true,
	"_html_data-structr-id": true,
}

// CloneNode copies n into a new, unattached node in the same document.
// With deep set the whole subtree is copied and action mappings inside it
// are rewritten to point at the copies.
func (m *Manager) CloneNode(ctx context.Context, n *doctree.Node, deep bool) (*doctree.Node, error) {
	ids := make(map[string]string)
	clone, err := m.cloneRecursive(ctx, n, deep, ids)
	if err != nil {
		return nil, err
	}
	for orig, copied := range ids {
		mappings, err := m.store.ActionMappings(ctx, orig)
		if err != nil {
			return nil, wrapStore("clone action mappings", err)
		}
		for _, am := range mappings {
			if err := m.store.SaveActionMapping(ctx, am.Remap(copied, ids)); err != nil {
				return nil, wrapStore("clone action mappings", err)
			}
		}
	}
	return clone, nil
}

func (m *Manager) cloneRecursive(ctx context.Context, n *doctree.Node, deep bool, ids map[string]string) (*doctree.Node, error) {
	c := shallowCopy(n)
	if err := m.store.CreateNode(ctx, c); err != nil {
		return nil, wrapStore("clone node", err)
	}
	ids[n.ID] = c.ID
	if !deep {
		return c, nil
	}

	children, err := m.Children(ctx, n.ID)
	if err != nil {
		return nil, err
	}
	for i, child := range children {
		cc, err := m.cloneRecursive(ctx, child, true, ids)
		if err != nil {
			return nil, err
		}
		if err := m.store.Link(ctx, c.ID, cc.ID, i); err != nil {
			return nil, wrapStore("clone node", err)
		}
		cc.ParentID = c.ID
	}
	return c, nil
}

// shallowCopy copies the general, HTML and data property views, the
// linkable reference and all grants. The shared component pointer is left
// for the caller to set.
func shallowCopy(n *doctree.Node) *doctree.Node {
	c := doctree.New(n.Kind)
	c.Tag = n.Tag
	c.Name = n.Name
	c.DocumentID = n.DocumentID
	c.LinkableID = n.LinkableID
	c.Path = n.Path
	c.Checksum = n.Checksum
	c.VisibleToPublic = n.VisibleToPublic
	c.VisibleToAuth = n.VisibleToAuth

	n.Props.Range(func(key string, v any) bool {
		if !cloneDenylist[key] {
			c.Props.Set(key, v)
		}
		return true
	})

	src := n.Copy()
	c.Grants = src.Grants
	return c
}
