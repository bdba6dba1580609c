package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dgallion1/pagetree/internal/doctree"
	"github.com/dgallion1/pagetree/internal/store"
)

// DeferredProperty is a property value left unconverted during import
// because it refers to nodes of the same subtree.
type DeferredProperty struct {
	NodeID string
	Key    string
	Raw    string
}

// ResolveDeferred converts and stores every entry. References are node ids
// or HTML ids ("#main") of nodes in the same document, separated by commas
// or spaces. References that match nothing are logged and dropped.
func (imp *Importer) ResolveDeferred(ctx context.Context, entries []DeferredProperty) error {
	for _, e := range entries {
		n, err := imp.store.GetNode(ctx, e.NodeID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				imp.log.Warn("deferred property target missing", "node", e.NodeID, "key", e.Key)
				continue
			}
			return fmt.Errorf("resolve %s on %s: %w", e.Key, e.NodeID, err)
		}
		ids, err := imp.resolveReferences(ctx, n, e.Raw)
		if err != nil {
			return fmt.Errorf("resolve %s on %s: %w", e.Key, e.NodeID, err)
		}
		n.Props.Set(e.Key, strings.Join(ids, ","))
		if err := imp.store.UpdateNode(ctx, n); err != nil {
			return fmt.Errorf("resolve %s on %s: %w", e.Key, e.NodeID, err)
		}
	}
	return nil
}

func (imp *Importer) resolveReferences(ctx context.Context, n *doctree.Node, raw string) ([]string, error) {
	fields := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' })
	var ids []string
	for _, ref := range fields {
		ref = strings.TrimPrefix(ref, "#")
		if ref == "" {
			continue
		}
		if doctree.IsID(ref) {
			if _, err := imp.store.GetNode(ctx, ref); err == nil {
				ids = append(ids, ref)
				continue
			} else if !errors.Is(err, store.ErrNotFound) {
				return nil, err
			}
		}
		found, err := imp.store.FindNodes(ctx, store.Query{
			DocumentID:    n.DocumentID,
			PropertyKey:   doctree.HTMLKey("id"),
			PropertyValue: ref,
		})
		if err != nil {
			return nil, err
		}
		if len(found) == 0 {
			imp.log.Warn("unresolved reference", "node", n.String(), "reference", ref)
			continue
		}
		ids = append(ids, found[0].ID)
	}
	return ids, nil
}
