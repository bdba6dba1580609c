package parser

import (
	"strings"
	"testing"
)

func TestMarkdownExtractor_HeadingsAndParagraphs(t *testing.T) {
	input := `# Title

Intro text.

## Section A

Section A content.
`
	p := &MarkdownExtractor{}
	got, err := p.Extract(strings.NewReader(input), "doc.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "Title\n\nIntro text.\n\nSection A\n\nSection A content."
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestMarkdownExtractor_MixedContentWithCodeBlocks(t *testing.T) {
	input := "# API Reference\n\nList of endpoints:\n\n```\nGET /api/users\nPOST /api/users\n```\n\nMore text after code.\n"

	p := &MarkdownExtractor{}
	got, err := p.Extract(strings.NewReader(input), "api.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(got, "GET /api/users\nPOST /api/users") {
		t.Errorf("expected code block content in text, got %q", got)
	}
	if !strings.Contains(got, "More text after code.") {
		t.Errorf("expected post-code text, got %q", got)
	}
	if strings.Count(got, "List of endpoints:") != 1 {
		t.Errorf("paragraph text duplicated: %q", got)
	}
}

func TestMarkdownExtractor_EmptyInput(t *testing.T) {
	p := &MarkdownExtractor{}
	got, err := p.Extract(strings.NewReader(""), "empty.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "" {
		t.Errorf("expected empty text, got %q", got)
	}
}

func TestRenderMarkdown_KeepsRawHTML(t *testing.T) {
	out, err := RenderMarkdown([]byte("# Hi\n\n<structr:template src=\"footer\"></structr:template>\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	html := string(out)
	if !strings.Contains(html, "<h1>Hi</h1>") {
		t.Errorf("expected rendered heading, got %q", html)
	}
	if !strings.Contains(html, `<structr:template src="footer">`) {
		t.Errorf("expected raw directive to survive, got %q", html)
	}
}

func TestRenderMarkdown_KeepsDirectiveBlock(t *testing.T) {
	out, err := RenderMarkdown([]byte("Intro\n<structr:component src=\"footer\"><p>f</p></structr:component>\n\nAfter *this*.\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	html := string(out)
	want := `<structr:component src="footer"><p>f</p></structr:component>`
	if !strings.Contains(html, want) {
		t.Errorf("expected %q in output, got %q", want, html)
	}
	if strings.Contains(html, "&lt;structr:") {
		t.Errorf("directive was escaped: %q", html)
	}
	if !strings.Contains(html, "<em>this</em>") {
		t.Errorf("expected markdown after the block to render, got %q", html)
	}
}

func TestRenderMarkdown_KeepsInlineDirective(t *testing.T) {
	out, err := RenderMarkdown([]byte("See <structr:template src='menu'/> and <structr:component src=\"x\">y</structr:component> here.\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	html := string(out)
	for _, want := range []string{`<structr:template src='menu'/>`, `<structr:component src="x">y</structr:component>`} {
		if !strings.Contains(html, want) {
			t.Errorf("expected %q in output, got %q", want, html)
		}
	}
	if !strings.HasPrefix(html, "<p>See ") {
		t.Errorf("expected a paragraph, got %q", html)
	}
}

func TestParse_MarkdownDirectiveElement(t *testing.T) {
	root, err := ParseString("# Hi\n\n<structr:component src=\"footer\"><p>f</p></structr:component>\n", ModeMarkdown)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var tags []string
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if KindOf(c) == NodeElement {
			tags = append(tags, c.Data)
		}
	}
	if strings.Join(tags, ",") != "h1,structr:component" {
		t.Errorf("unexpected top-level elements %v", tags)
	}
}
