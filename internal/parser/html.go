package parser

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/html/charset"
)

// Mode selects how markup input is parsed.
type Mode int

const (
	// ModeDocument parses a complete document including html/head/body.
	ModeDocument Mode = iota
	// ModeFragment parses markup as the content of a body element.
	ModeFragment
	// ModeTableFragment parses rows or cells that only make sense inside a
	// table, picking the enclosing element from the first tag.
	ModeTableFragment
	// ModeMarkdown renders Markdown to HTML and parses the result as a fragment.
	ModeMarkdown
)

func (m Mode) String() string {
	switch m {
	case ModeDocument:
		return "document"
	case ModeFragment:
		return "fragment"
	case ModeTableFragment:
		return "table-fragment"
	case ModeMarkdown:
		return "markdown"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// NodeKind classifies a parsed markup node for the importer.
type NodeKind int

const (
	NodeDocument NodeKind = iota
	NodeElement
	NodeText
	NodeData // raw text inside script or style
	NodeComment
	NodeDoctype
	NodeDeclaration // <?xml ...?> and friends, surfaced by the parser as comments
)

// Parse reads markup from r. Document mode returns the parser's document
// node; every other mode returns a synthetic document node whose children
// are the parsed fragment nodes.
func Parse(r io.Reader, mode Mode) (*html.Node, error) {
	switch mode {
	case ModeDocument:
		doc, err := html.Parse(r)
		if err != nil {
			return nil, fmt.Errorf("parse document: %w", err)
		}
		return doc, nil
	case ModeFragment:
		return parseFragment(r, atom.Body)
	case ModeTableFragment:
		src, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read table fragment: %w", err)
		}
		return parseFragment(bytes.NewReader(src), tableContext(string(src)))
	case ModeMarkdown:
		src, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read markdown: %w", err)
		}
		out, err := RenderMarkdown(src)
		if err != nil {
			return nil, err
		}
		return parseFragment(bytes.NewReader(out), atom.Body)
	}
	return nil, fmt.Errorf("unsupported parse mode: %s", mode)
}

// ParseReader is Parse for fetched content: the input is decoded to UTF-8
// using the charset from contentType or a <meta> declaration.
func ParseReader(r io.Reader, contentType string, mode Mode) (*html.Node, error) {
	utf8, err := charset.NewReader(r, contentType)
	if err != nil {
		return nil, fmt.Errorf("detect charset: %w", err)
	}
	return Parse(utf8, mode)
}

// ParseString is Parse for in-memory sources.
func ParseString(src string, mode Mode) (*html.Node, error) {
	return Parse(strings.NewReader(src), mode)
}

// DetectMode guesses the parse mode from the start of src.
func DetectMode(src string) Mode {
	head := strings.ToLower(strings.TrimSpace(src))
	if strings.HasPrefix(head, "<!doctype") || strings.HasPrefix(head, "<html") {
		return ModeDocument
	}
	if strings.HasPrefix(head, "<?xml") {
		rest := head
		if i := strings.Index(rest, "?>"); i >= 0 {
			rest = strings.TrimSpace(rest[i+2:])
		}
		if strings.HasPrefix(rest, "<!doctype") || strings.HasPrefix(rest, "<html") {
			return ModeDocument
		}
	}
	switch firstTag(head) {
	case "tr", "td", "th", "tbody", "thead", "tfoot", "caption", "colgroup", "col":
		return ModeTableFragment
	}
	return ModeFragment
}

func parseFragment(r io.Reader, context atom.Atom) (*html.Node, error) {
	ctx := &html.Node{Type: html.ElementNode, DataAtom: context, Data: context.String()}
	nodes, err := html.ParseFragment(r, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse fragment: %w", err)
	}
	root := &html.Node{Type: html.DocumentNode}
	for _, n := range nodes {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
		root.AppendChild(n)
	}
	return root, nil
}

// tableContext returns the element a table fragment must be parsed in.
func tableContext(src string) atom.Atom {
	switch firstTag(strings.ToLower(strings.TrimSpace(src))) {
	case "td", "th":
		return atom.Tr
	case "tr":
		return atom.Tbody
	case "tbody", "thead", "tfoot", "caption", "colgroup", "col":
		return atom.Table
	}
	return atom.Body
}

func firstTag(s string) string {
	i := strings.IndexByte(s, '<')
	if i < 0 {
		return ""
	}
	s = s[i+1:]
	end := strings.IndexAny(s, " \t\r\n/>")
	if end < 0 {
		return s
	}
	return s[:end]
}

// KindOf classifies n.
func KindOf(n *html.Node) NodeKind {
	switch n.Type {
	case html.ElementNode:
		return NodeElement
	case html.TextNode:
		if p := n.Parent; p != nil && p.Type == html.ElementNode {
			switch p.DataAtom {
			case atom.Script, atom.Style:
				return NodeData
			}
		}
		return NodeText
	case html.CommentNode:
		if strings.HasPrefix(n.Data, "?") {
			return NodeDeclaration
		}
		return NodeComment
	case html.DoctypeNode:
		return NodeDoctype
	}
	return NodeDocument
}

// Attr returns the value of attribute key on n.
func Attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// OuterHTML serializes n and its subtree.
func OuterHTML(n *html.Node) (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return "", fmt.Errorf("render %s: %w", n.Data, err)
	}
	return buf.String(), nil
}

// InnerHTML serializes the children of n.
func InnerHTML(n *html.Node) (string, error) {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", fmt.Errorf("render %s: %w", n.Data, err)
		}
	}
	return buf.String(), nil
}

// RawText concatenates the text children of n without trimming. Used for
// script and style bodies.
func RawText(n *html.Node) string {
	var buf strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			buf.WriteString(c.Data)
		}
	}
	return buf.String()
}

// TextContent returns the trimmed text of n's subtree.
func TextContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.TrimSpace(buf.String())
}

// HTMLExtractor pulls readable text out of downloaded HTML files.
type HTMLExtractor struct{}

func (p *HTMLExtractor) Extract(r io.Reader, filename string) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	var blocks []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Nav, atom.Head:
				return
			case atom.P, atom.Li, atom.Td, atom.Blockquote, atom.Pre,
				atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
				if t := TextContent(n); t != "" {
					blocks = append(blocks, t)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	if body := findBody(doc); body != nil {
		walk(body)
	} else {
		walk(doc)
	}

	title := findTitle(doc)
	if title != "" && (len(blocks) == 0 || blocks[0] != title) {
		blocks = append([]string{title}, blocks...)
	}
	return strings.Join(blocks, "\n\n"), nil
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.DataAtom == atom.Title {
		return TextContent(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.Body {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}
