package parser

import (
	"strings"
	"testing"

	"golang.org/x/net/html"
)

func TestDetectMode(t *testing.T) {
	tests := []struct {
		src  string
		want Mode
	}{
		{"<!DOCTYPE html><html></html>", ModeDocument},
		{"  <html><body></body></html>", ModeDocument},
		{"<?xml version=\"1.0\"?>\n<!doctype html><html></html>", ModeDocument},
		{"<div>hi</div>", ModeFragment},
		{"plain text", ModeFragment},
		{"<tr><td>1</td></tr>", ModeTableFragment},
		{"<td>1</td>", ModeTableFragment},
		{"<thead><tr></tr></thead>", ModeTableFragment},
	}
	for _, tt := range tests {
		if got := DetectMode(tt.src); got != tt.want {
			t.Errorf("DetectMode(%q) = %s, want %s", tt.src, got, tt.want)
		}
	}
}

func TestParse_Fragment(t *testing.T) {
	root, err := ParseString("<ul><li>One</li><li>Two</li></ul><p>x</p>", ModeFragment)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if root.Type != html.DocumentNode {
		t.Fatalf("expected synthetic document root, got %v", root.Type)
	}
	var tags []string
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		tags = append(tags, c.Data)
	}
	if strings.Join(tags, ",") != "ul,p" {
		t.Errorf("unexpected top-level tags %v", tags)
	}
}

func TestParse_TableFragmentKeepsCells(t *testing.T) {
	// Parsed as body content, the parser would drop the td tags.
	root, err := ParseString("<td>a</td><td>b</td>", ModeTableFragment)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var cells int
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == "td" {
			cells++
		}
	}
	if cells != 2 {
		t.Errorf("expected 2 td cells, got %d", cells)
	}
}

func TestParse_Document(t *testing.T) {
	root, err := ParseString("<!doctype html><html><head><title>T</title></head><body><p>x</p></body></html>", ModeDocument)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if KindOf(root.FirstChild) != NodeDoctype {
		t.Errorf("expected doctype as first child")
	}
}

func TestParse_Markdown(t *testing.T) {
	root, err := ParseString("# Hello\n\nworld\n", ModeMarkdown)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first := root.FirstChild
	if first == nil || first.Data != "h1" {
		t.Fatalf("expected h1 first, got %+v", first)
	}
	if TextContent(first) != "Hello" {
		t.Errorf("unexpected heading text %q", TextContent(first))
	}
}

func TestKindOf(t *testing.T) {
	root, err := ParseString("<?xml version=\"1.0\"?><!-- note --><script>var a;</script>text", ModeFragment)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var kinds []NodeKind
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		kinds = append(kinds, KindOf(c))
		if c.Data == "script" {
			if got := KindOf(c.FirstChild); got != NodeData {
				t.Errorf("script body: expected data kind, got %d", got)
			}
		}
	}
	want := []NodeKind{NodeDeclaration, NodeComment, NodeElement, NodeText}
	if len(kinds) != len(want) {
		t.Fatalf("expected %d nodes, got %d", len(want), len(kinds))
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("node %d: expected kind %d, got %d", i, want[i], kinds[i])
		}
	}
}

func TestInnerAndOuterHTML(t *testing.T) {
	root, err := ParseString(`<div class="a"><b>x</b>y</div>`, ModeFragment)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	div := root.FirstChild
	inner, err := InnerHTML(div)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner != "<b>x</b>y" {
		t.Errorf("unexpected inner html %q", inner)
	}
	outer, err := OuterHTML(div)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outer != `<div class="a"><b>x</b>y</div>` {
		t.Errorf("unexpected outer html %q", outer)
	}
	if v, ok := Attr(div, "class"); !ok || v != "a" {
		t.Errorf("expected class attr a, got %q %v", v, ok)
	}
}

func TestHTMLExtractor(t *testing.T) {
	input := `<html><head><title>Guide</title><style>p{}</style></head>
<body><h1>Intro</h1><p>First.</p><script>alert(1)</script><ul><li>Item</li></ul></body></html>`
	p := &HTMLExtractor{}
	got, err := p.Extract(strings.NewReader(input), "guide.html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "Guide\n\nIntro\n\nFirst.\n\nItem"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}
