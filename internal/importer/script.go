package importer

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/net/html"

	"github.com/dgallion1/pagetree/internal/doctree"
	"github.com/dgallion1/pagetree/internal/parser"
	"github.com/dgallion1/pagetree/internal/scripting"
)

// Script types with a meaning during import.
const (
	ScriptTypeSchema  = "application/x-structr-schema+json"
	ScriptTypeExecute = "application/x-structr-script"
)

// prepareElement sets the content type of script and style elements before
// they are stored.
func prepareElement(n *doctree.Node) {
	switch n.Tag {
	case "script", "style":
	default:
		return
	}
	if n.ContentType() != "" {
		return
	}
	typ, _ := n.HTMLAttr("type")
	if typ == "" {
		typ = doctree.ContentTypeJavaScript
		if n.Tag == "style" {
			typ = doctree.ContentTypeCSS
		}
	}
	n.SetContentType(typ)
}

// postProcess runs the type specific handling of a stored script or style
// element and reports whether its children are still to be imported.
func (r *run) postProcess(ctx context.Context, markup *html.Node, n *doctree.Node, recurse bool) (bool, error) {
	switch n.Tag {
	case "script":
		switch n.ContentType() {
		case ScriptTypeSchema:
			r.importSchema(ctx, markup, n)
		case ScriptTypeExecute:
			return false, r.execute(ctx, markup, n)
		}
	case "style":
		if n.ContentType() == doctree.ContentTypeCSS {
			for _, ref := range cssReferences(parser.RawText(markup)) {
				r.downloadFile(ctx, ref, r.base)
			}
		}
	}
	return recurse, nil
}

func (r *run) importSchema(ctx context.Context, markup *html.Node, n *doctree.Node) {
	if r.imp.schema == nil {
		r.log.Debug("schema script ignored", "node", n.String())
		return
	}
	if err := r.imp.schema.ImportSchema(ctx, parser.RawText(markup)); err != nil {
		r.warn("schema import failed", "node", n.String(), "error", err)
	}
}

// execute evaluates an inline script against n. Script failures are
// logged; only store errors are returned.
func (r *run) execute(ctx context.Context, markup *html.Node, n *doctree.Node) error {
	if r.imp.eval == nil {
		r.warn("script not executed: no evaluator", "node", n.String())
		return nil
	}
	_, err := r.imp.eval.Evaluate(ctx, n, parser.RawText(markup))
	switch {
	case errors.Is(err, scripting.ErrUnlicensed):
		r.log.Warn("script uses unlicensed function", "node", n.String(), "error", err)
		return nil
	case err != nil:
		isShared, _ := r.imp.shared.IsShared(ctx, n)
		r.log.Error("script failed", "node", n.String(), "shared_component", isShared, "error", err)
		r.state.run.AddError(fmt.Sprintf("script %s: %v", n.ID, err))
		return nil
	}
	if err := r.imp.store.UpdateNode(ctx, n); err != nil {
		return fmt.Errorf("update %s after script: %w", n, err)
	}
	return nil
}
