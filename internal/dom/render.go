package dom

import (
	"context"
	"strings"

	"golang.org/x/net/html"

	"github.com/dgallion1/pagetree/internal/doctree"
)

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true, "hr": true,
	"img": true, "input": true, "keygen": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// RenderMarkup serializes the persisted subtree rooted at n back to markup.
// Attributes are written in property order.
func (m *Manager) RenderMarkup(ctx context.Context, n *doctree.Node) (string, error) {
	var b strings.Builder
	if err := m.render(ctx, &b, n); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (m *Manager) render(ctx context.Context, b *strings.Builder, n *doctree.Node) error {
	switch n.Kind {
	case doctree.KindText:
		switch n.ContentType() {
		case "", doctree.ContentTypePlain:
			b.WriteString(html.EscapeString(n.Content()))
		default:
			b.WriteString(n.Content())
		}
		return nil
	case doctree.KindComment:
		b.WriteString("<!--")
		b.WriteString(n.Content())
		b.WriteString("-->")
		return nil
	case doctree.KindTemplate:
		b.WriteString(n.Content())
		return m.renderChildren(ctx, b, n)
	case doctree.KindElement:
		b.WriteByte('<')
		b.WriteString(n.Tag)
		n.Props.Range(func(key string, v any) bool {
			var name string
			switch {
			case doctree.IsHTMLKey(key):
				name = strings.TrimPrefix(key, doctree.HTMLPrefix)
			case doctree.IsDataKey(key):
				name = key
			default:
				return true
			}
			b.WriteByte(' ')
			b.WriteString(name)
			b.WriteString(`="`)
			b.WriteString(html.EscapeString(n.Props.String(key)))
			b.WriteByte('"')
			return true
		})
		b.WriteByte('>')
		if voidElements[n.Tag] {
			return nil
		}
		if err := m.renderChildren(ctx, b, n); err != nil {
			return err
		}
		b.WriteString("</")
		b.WriteString(n.Tag)
		b.WriteByte('>')
		return nil
	case doctree.KindFile, doctree.KindImage:
		return nil
	}
	return m.renderChildren(ctx, b, n)
}

func (m *Manager) renderChildren(ctx context.Context, b *strings.Builder, n *doctree.Node) error {
	children, err := m.Children(ctx, n.ID)
	if err != nil {
		return err
	}
	for _, c := range children {
		if err := m.render(ctx, b, c); err != nil {
			return err
		}
	}
	return nil
}
