package importer

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/dgallion1/pagetree/internal/doctree"
	"github.com/dgallion1/pagetree/internal/parser"
	"github.com/dgallion1/pagetree/internal/scanner"
)

func (r *run) textStep(markup *html.Node, parent *doctree.Node, kind parser.NodeKind) *step {
	if strings.TrimSpace(markup.Data) == "" {
		return nil
	}
	content := strings.Trim(markup.Data, "\n\r\t")
	if content == "" {
		return nil
	}
	n := doctree.NewText(content, textContentType(parent, kind))
	r.markExpressions(n)
	return &step{node: n, create: true, attach: true}
}

// textContentType picks the content type of a text node. Raw text inside
// style and script elements takes the type of the element.
func textContentType(parent *doctree.Node, kind parser.NodeKind) string {
	if kind != parser.NodeData || parent == nil {
		return doctree.ContentTypePlain
	}
	if ct := parent.ContentType(); ct != "" {
		return ct
	}
	switch parent.Tag {
	case "style":
		return doctree.ContentTypeCSS
	case "script":
		return doctree.ContentTypeJavaScript
	}
	return doctree.ContentTypePlain
}

// markExpressions flags text nodes whose content holds ${...} regions and
// records where they start.
func (r *run) markExpressions(n *doctree.Node) {
	var c scanner.Collector
	scanner.Scan(n.Content(), &c)
	if c.Unterminated() {
		r.warn("unterminated expression", "content", abbreviate(n.Content(), 40))
	}
	exprs := c.Expressions()
	if len(exprs) == 0 {
		return
	}
	// Starts holds every opener in order; only the last one can be unterminated.
	positions := make([]string, len(exprs))
	for i := range exprs {
		positions[i] = fmt.Sprintf("%d:%d", c.Starts[i][0], c.Starts[i][1])
	}
	n.Props.Set(doctree.PropHasExpressions, true)
	n.Props.Set(doctree.PropExpressionCount, len(exprs))
	n.Props.Set(doctree.PropExpressionPositions, strings.Join(positions, ","))
}

func abbreviate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
