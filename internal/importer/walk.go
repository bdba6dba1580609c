package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/dgallion1/pagetree/internal/doctree"
	"github.com/dgallion1/pagetree/internal/parser"
)

// step describes what to do with the node produced for one markup child.
type step struct {
	node *doctree.Node

	create  bool // node is new and still has to be stored
	attach  bool // append below the current parent
	recurse bool // import the markup children below node
	attrs   bool // map the markup attributes onto node
	adopt   bool // node may move in from another document
}

// importChildren imports the children of markup below parent in document
// order. A child that cannot be resolved is skipped; its siblings are
// still imported.
func (r *run) importChildren(ctx context.Context, markup *html.Node, parent *doctree.Node, depth int) error {
	var pending []string
	for child := markup.FirstChild; child != nil; child = child.NextSibling {
		var (
			st  *step
			err error
		)
		switch kind := parser.KindOf(child); kind {
		case parser.NodeComment:
			if strings.TrimSpace(child.Data) == "" {
				continue
			}
			if r.isInstruction(child.Data) {
				if len(pending) > 0 {
					if err := r.carry(ctx, parent, pending, depth); err != nil {
						return err
					}
				}
				pending = []string{child.Data}
				continue
			}
			st = r.commentStep(child)
		case parser.NodeText, parser.NodeData:
			st = r.textStep(child, parent, kind)
		case parser.NodeElement:
			st, err = r.elementStep(ctx, child, depth)
		default:
			// doctype, declaration
			continue
		}
		if err != nil {
			return err
		}
		if st == nil {
			continue
		}
		if err := r.materialize(ctx, child, parent, st, pending, depth); err != nil {
			return err
		}
		pending = nil
	}
	if len(pending) > 0 {
		return r.carry(ctx, parent, pending, depth)
	}
	return nil
}

func (r *run) isInstruction(comment string) bool {
	return r.imp.instructions != nil && r.imp.instructions.ContainsInstructions(comment)
}

// carry stores an empty text node whose only purpose is to hold instructions
// that no real node followed.
func (r *run) carry(ctx context.Context, parent *doctree.Node, pending []string, depth int) error {
	st := &step{node: doctree.NewText("", ""), create: true, attach: true}
	return r.materialize(ctx, nil, parent, st, pending, depth)
}

func (r *run) commentStep(markup *html.Node) *step {
	r.state.comments.WriteString(markup.Data)
	r.state.comments.WriteByte('\n')
	return &step{node: doctree.NewComment(markup.Data), create: true, attach: true}
}

// materialize stores, attaches and post-processes the node of st, then
// imports the markup children below it when st asks for it.
func (r *run) materialize(ctx context.Context, markup *html.Node, parent *doctree.Node, st *step, pending []string, depth int) error {
	n := st.node
	log := r.log.With("node", n.String(), "depth", depth)

	if st.create {
		if n.DocumentID == "" && !n.Kind.IsDocument() {
			n.DocumentID = r.documentID()
		}
		r.applyVisibility(n, parent)
		if err := r.applyInstructions(ctx, n, pending); err != nil {
			r.warn("instructions not applied", "node", n.String(), "error", err)
		}
		if st.attrs && markup != nil {
			r.mapAttributes(ctx, markup, n, n.Tag)
			prepareElement(n)
		}
		if err := r.imp.store.CreateNode(ctx, n); err != nil {
			return fmt.Errorf("create %s: %w", n, err)
		}
		r.state.run.IncrNodesCreated()
	} else if len(pending) > 0 {
		id := n.ID
		if err := r.applyInstructions(ctx, n, pending); err != nil {
			r.warn("instructions not applied", "node", n.String(), "error", err)
		}
		n.ID = id
		if err := r.imp.store.UpdateNode(ctx, n); err != nil {
			return fmt.Errorf("update %s: %w", n, err)
		}
	}

	if st.attach && parent != nil {
		attach := r.imp.dom.AppendChild
		if st.adopt {
			attach = r.imp.dom.AdoptChild
		}
		if err := attach(ctx, parent, n); err != nil {
			if !errors.Is(err, doctree.ErrDOM) {
				return err
			}
			r.warn("node not attached", "node", n.String(), "parent", parent.String(), "error", err)
			if st.create {
				if err := r.imp.store.DeleteNode(ctx, n.ID); err != nil {
					return fmt.Errorf("drop %s: %w", n, err)
				}
			}
			return nil
		}
	}
	log.Debug("imported node")

	if markup == nil {
		return nil
	}
	recurse := st.recurse
	if st.create && n.Kind == doctree.KindElement {
		var err error
		if recurse, err = r.postProcess(ctx, markup, n, recurse); err != nil {
			return err
		}
	}
	if !recurse {
		return nil
	}
	return r.importChildren(ctx, markup, n, depth+1)
}

// applyInstructions hands every pending comment to the instruction handler.
func (r *run) applyInstructions(ctx context.Context, n *doctree.Node, pending []string) error {
	if r.imp.instructions == nil {
		return nil
	}
	for _, comment := range pending {
		if _, err := r.imp.instructions.Handle(ctx, r.doc, n, comment, true); err != nil {
			return err
		}
	}
	return nil
}

// applyVisibility sets the visibility flags of a new node.
func (r *run) applyVisibility(n, parent *doctree.Node) {
	if r.imp.deployment && !r.imp.relativeVisibility {
		n.VisibleToPublic = r.imp.publicVisible
		n.VisibleToAuth = r.imp.authVisible
		return
	}
	from := parent
	if from == nil {
		from = r.doc
	}
	if from == nil {
		n.VisibleToPublic = r.imp.publicVisible
		n.VisibleToAuth = r.imp.authVisible
		return
	}
	n.VisibleToPublic = from.VisibleToPublic
	n.VisibleToAuth = from.VisibleToAuth
}

func (r *run) elementStep(ctx context.Context, markup *html.Node, depth int) (*step, error) {
	tag := cleanTag(markup.Data)
	switch tag {
	case "":
		return nil, nil
	case "structr:template":
		return r.templateDirective(ctx, markup)
	case "structr:shared-template":
		return r.sharedTemplateDirective(ctx, markup)
	case "structr:component":
		return r.componentDirective(ctx, markup, depth)
	case "svg":
		return r.svgStep(markup), nil
	}
	return &step{
		node:    doctree.NewElement(tag),
		create:  true,
		attach:  true,
		recurse: true,
		attrs:   true,
	}, nil
}

// svgStep keeps foreign markup verbatim in a single XML text node.
func (r *run) svgStep(markup *html.Node) *step {
	out, err := parser.OuterHTML(markup)
	if err != nil {
		r.warn("svg not serialized", "error", err)
		return nil
	}
	return &step{node: doctree.NewText(out, doctree.ContentTypeXML), create: true, attach: true}
}
