package importer

import (
	"context"
	"fmt"

	"golang.org/x/net/html"

	"github.com/dgallion1/pagetree/internal/doctree"
	"github.com/dgallion1/pagetree/internal/parser"
	"github.com/dgallion1/pagetree/internal/shared"
)

// templateDirective handles <structr:template src="...">. The reference is
// a node id, a shared template name or a shared component name. An unknown
// name becomes a new template holding the directive's markup; an unknown
// id is skipped.
func (r *run) templateDirective(ctx context.Context, markup *html.Node) (*step, error) {
	src, _ := parser.Attr(markup, "src")

	var target *doctree.Node
	var err error
	switch {
	case doctree.IsID(src):
		if target, err = r.imp.shared.Get(ctx, src); err != nil {
			return nil, err
		}
		if target == nil {
			r.warn("template not found", "src", src)
			return nil, nil
		}
	case src != "":
		if target, err = r.imp.shared.FindByName(ctx, src, shared.LookupTemplate); err != nil {
			return nil, err
		}
		if target == nil {
			if target, err = r.imp.shared.FindByName(ctx, src, shared.LookupComponent); err != nil {
				return nil, err
			}
		}
	}

	if target == nil {
		inner, err := parser.InnerHTML(markup)
		if err != nil {
			r.warn("template not serialized", "src", src, "error", err)
			return nil, nil
		}
		return &step{node: doctree.NewTemplate(src, inner), create: true, attach: true}, nil
	}

	isShared, err := r.imp.shared.IsShared(ctx, target)
	if err != nil {
		return nil, err
	}
	if isShared {
		clone, err := r.syncedClone(ctx, target)
		if err != nil {
			return nil, err
		}
		return &step{node: clone, attach: true, recurse: true}, nil
	}
	return &step{node: target, attach: true, adopt: true, recurse: true}, nil
}

// sharedTemplateDirective handles <structr:shared-template name="...">. The
// template is stored in the hidden document once and never attached.
func (r *run) sharedTemplateDirective(ctx context.Context, markup *html.Node) (*step, error) {
	name, _ := parser.Attr(markup, "name")
	if name == "" {
		r.warn("shared template without name")
		return nil, nil
	}
	existing, err := r.imp.shared.FindByName(ctx, name, shared.LookupTemplate)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		r.log.Debug("shared template exists", "name", name, "id", existing.ID)
		return nil, nil
	}
	inner, err := parser.InnerHTML(markup)
	if err != nil {
		r.warn("shared template not serialized", "name", name, "error", err)
		return nil, nil
	}
	tpl := doctree.NewTemplate(name, inner)
	r.applyVisibility(tpl, nil)
	if err := r.imp.shared.Create(ctx, tpl); err != nil {
		return nil, err
	}
	r.state.run.IncrNodesCreated()
	return &step{node: tpl}, nil
}

// componentDirective handles <structr:component src="...">. A component
// that cannot be found is created in the hidden document from the
// directive's children. The attached node is always a synced clone.
func (r *run) componentDirective(ctx context.Context, markup *html.Node, depth int) (*step, error) {
	src, _ := parser.Attr(markup, "src")

	var comp *doctree.Node
	var err error
	switch {
	case doctree.IsID(src):
		comp, err = r.imp.shared.Get(ctx, src)
	case src != "":
		comp, err = r.imp.shared.FindByName(ctx, src, shared.LookupComponent)
	}
	if err != nil {
		return nil, err
	}
	if comp == nil {
		if comp, err = r.synthesizeComponent(ctx, markup, src, depth); err != nil {
			return nil, err
		}
	}

	clone, err := r.syncedClone(ctx, comp)
	if err != nil {
		return nil, err
	}
	if orig := clone.Props.String(doctree.PropOriginalSrc); orig != "" {
		clone.SetHTMLAttr("src", orig)
	} else {
		clone.Props.Delete(doctree.HTMLKey("src"))
	}
	clone.Props.Delete(doctree.PropOriginalSrc)
	if err := r.imp.store.UpdateNode(ctx, clone); err != nil {
		return nil, fmt.Errorf("update component clone %s: %w", clone, err)
	}
	return &step{node: clone, attach: true}, nil
}

// synthesizeComponent stores a new shared component named src and imports
// the directive's children into it.
func (r *run) synthesizeComponent(ctx context.Context, markup *html.Node, src string, depth int) (*doctree.Node, error) {
	hidden, err := r.imp.shared.HiddenDocument(ctx)
	if err != nil {
		return nil, err
	}
	name := src
	if doctree.IsID(src) {
		name = ""
	}
	comp := doctree.NewComponent(name)
	if name != "" {
		comp.Props.Set(doctree.PropOriginalSrc, src)
	}
	r.applyVisibility(comp, nil)
	if err := r.imp.shared.Create(ctx, comp); err != nil {
		return nil, err
	}
	r.state.run.IncrNodesCreated()
	r.log.Debug("created shared component", "name", name, "id", comp.ID)

	if err := r.within(hidden).importChildren(ctx, markup, comp, depth+1); err != nil {
		return nil, err
	}
	return comp, nil
}

// syncedClone shallow-clones a shared node into the current document and
// points the clone back at it.
func (r *run) syncedClone(ctx context.Context, origin *doctree.Node) (*doctree.Node, error) {
	clone, err := r.imp.dom.CloneNode(ctx, origin, false)
	if err != nil {
		return nil, fmt.Errorf("clone %s: %w", origin, err)
	}
	clone.SharedComponentID = origin.ID
	clone.DocumentID = r.documentID()
	if err := r.imp.store.UpdateNode(ctx, clone); err != nil {
		return nil, fmt.Errorf("update clone %s: %w", clone, err)
	}
	r.state.run.IncrNodesCreated()
	return clone, nil
}
