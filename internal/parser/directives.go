package parser

import (
	"regexp"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmparser "github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

var (
	directiveStart = regexp.MustCompile(`^(?i)</?structr:`)
	directiveTag   = regexp.MustCompile(`^(?i)</?structr:[\w.:-]+(?:\s+(?:[^"'<>]|"[^"]*"|'[^']*')*)?/?>`)
)

// directives makes goldmark pass directive tags through as raw HTML.
// Plain HTML tag names cannot contain a colon, so goldmark would escape them.
type directives struct{}

func (directives) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(
		gmparser.WithBlockParsers(util.Prioritized(&directiveBlockParser{}, 850)),
		// Ahead of autolinks, which would read <structr:x> as a URI.
		gmparser.WithInlineParsers(util.Prioritized(&directiveInlineParser{}, 250)),
	)
}

// directiveBlockParser opens an HTML block on a line starting with a
// directive tag. The block runs until the next blank line.
type directiveBlockParser struct{}

func (p *directiveBlockParser) Trigger() []byte { return []byte{'<'} }

func (p *directiveBlockParser) Open(parent ast.Node, reader text.Reader, pc gmparser.Context) (ast.Node, gmparser.State) {
	line, segment := reader.PeekLine()
	pos := pc.BlockOffset()
	if pos < 0 || !directiveStart.Match(line[pos:]) {
		return nil, gmparser.NoChildren
	}
	node := ast.NewHTMLBlock(ast.HTMLBlockType7)
	node.Lines().Append(segment)
	reader.Advance(segment.Len() - util.TrimRightSpaceLength(line))
	return node, gmparser.NoChildren
}

func (p *directiveBlockParser) Continue(node ast.Node, reader text.Reader, pc gmparser.Context) gmparser.State {
	line, segment := reader.PeekLine()
	if util.IsBlank(line) {
		return gmparser.Close
	}
	node.Lines().Append(segment)
	reader.Advance(segment.Len() - util.TrimRightSpaceLength(line))
	return gmparser.Continue | gmparser.NoChildren
}

func (p *directiveBlockParser) Close(node ast.Node, reader text.Reader, pc gmparser.Context) {}

func (p *directiveBlockParser) CanInterruptParagraph() bool { return true }

func (p *directiveBlockParser) CanAcceptIndentedLine() bool { return false }

// directiveInlineParser keeps directive tags inside paragraphs verbatim.
type directiveInlineParser struct{}

func (p *directiveInlineParser) Trigger() []byte { return []byte{'<'} }

func (p *directiveInlineParser) Parse(parent ast.Node, block text.Reader, pc gmparser.Context) ast.Node {
	line, segment := block.PeekLine()
	m := directiveTag.FindIndex(line)
	if m == nil {
		return nil
	}
	node := ast.NewRawHTML()
	node.Segments.Append(segment.WithStop(segment.Start + m[1]))
	block.Advance(m[1])
	return node
}
