package dom

import (
	"context"

	"github.com/dgallion1/pagetree/internal/doctree"
)

// Authorizer decides whether the acting principal may modify a node.
type Authorizer interface {
	CanWrite(ctx context.Context, n *doctree.Node) bool
}

// AllowAll permits every mutation.
type AllowAll struct{}

func (AllowAll) CanWrite(context.Context, *doctree.Node) bool { return true }

type principalKey struct{}

// WithPrincipal attaches the acting principal to ctx.
func WithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, principalKey{}, principal)
}

// PrincipalFrom returns the principal attached by WithPrincipal.
func PrincipalFrom(ctx context.Context) string {
	p, _ := ctx.Value(principalKey{}).(string)
	return p
}

// GrantAuthorizer checks node grants against the principal in the context.
// Nodes without grants are writable by anyone; Superuser bypasses grants.
type GrantAuthorizer struct {
	Superuser string
}

func (a GrantAuthorizer) CanWrite(ctx context.Context, n *doctree.Node) bool {
	if len(n.Grants) == 0 {
		return true
	}
	p := PrincipalFrom(ctx)
	if p == "" {
		return false
	}
	if a.Superuser != "" && p == a.Superuser {
		return true
	}
	for _, g := range n.Grants {
		if g.Principal == p && g.Allows(doctree.PermissionWrite) {
			return true
		}
	}
	return false
}

// HierarchyRules rejects structurally invalid parent/child pairs.
type HierarchyRules interface {
	Check(parent, child *doctree.Node) error
}

// DefaultHierarchy keeps documents and downloaded resources at the top of
// the tree and text-like leaves childless.
type DefaultHierarchy struct{}

func (DefaultHierarchy) Check(parent, child *doctree.Node) error {
	switch {
	case child.Kind.IsDocument():
		return doctree.NewDOMError(doctree.HierarchyRequestErr, "a %s cannot be a child", child.Kind)
	case child.Kind.IsLinkable():
		return doctree.NewDOMError(doctree.HierarchyRequestErr, "a %s cannot be placed in the tree", child.Kind)
	case parent.Kind == doctree.KindText || parent.Kind == doctree.KindComment:
		return doctree.NewDOMError(doctree.HierarchyRequestErr, "%s nodes cannot have children", parent.Kind)
	case parent.Kind.IsLinkable():
		return doctree.NewDOMError(doctree.HierarchyRequestErr, "%s nodes cannot have children", parent.Kind)
	}
	return nil
}
