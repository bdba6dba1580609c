package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func text(s string) Segment { return Segment{Kind: SegmentText, Text: s} }

func expr(s string, line, col int) Segment {
	return Segment{Kind: SegmentExpression, Text: s, Line: line, Column: col}
}

func unterminated(s string) Segment { return Segment{Kind: SegmentUnterminated, Text: s} }

func TestScan(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []Segment
	}{
		{
			name:  "text around expression",
			input: "a${b}c",
			want:  []Segment{text("a"), expr("${b}", 1, 5), text("c")},
		},
		{
			name:  "closing brace inside single quotes",
			input: "x${'}'}",
			want:  []Segment{text("x"), expr("${'}'}", 1, 7)},
		},
		{
			name:  "nested braces are counted",
			input: "${a{b}c}",
			want:  []Segment{expr("${a{b}c}", 1, 8)},
		},
		{
			name:  "unterminated at end of input",
			input: "abc${unterminated",
			want:  []Segment{text("abc"), unterminated("${unterminated")},
		},
		{
			name:  "only unterminated",
			input: "${unterminated",
			want:  []Segment{unterminated("${unterminated")},
		},
		{
			name:  "plain text",
			input: "no expressions here",
			want:  []Segment{text("no expressions here")},
		},
		{
			name:  "dollar without brace stays literal",
			input: "$5 and ${x}",
			want:  []Segment{text("$5 and "), expr("${x}", 1, 11)},
		},
		{
			name:  "repeated dollars before opener",
			input: "$$${x}",
			want:  []Segment{text("$$"), expr("${x}", 1, 6)},
		},
		{
			name:  "trailing dollar",
			input: "cost $",
			want:  []Segment{text("cost $")},
		},
		{
			name:  "line comment hides closing brace",
			input: "${a // }\n}",
			want:  []Segment{expr("${a // }\n}", 1, 1)},
		},
		{
			name:  "escaped quote inside string",
			input: `${'it\'s}'}`,
			want:  []Segment{expr(`${'it\'s}'}`, 1, 11)},
		},
		{
			name:  "single quote inside double quotes",
			input: `${"a'}"}`,
			want:  []Segment{expr(`${"a'}"}`, 1, 8)},
		},
		{
			name:  "escaped quote outside string does not open one",
			input: `${\'}`,
			want:  []Segment{expr(`${\'}`, 1, 5)},
		},
		{
			name:  "braces inside double quotes ignored",
			input: `${"{"}rest`,
			want:  []Segment{expr(`${"{"}`, 1, 6), text("rest")},
		},
		{
			name:  "expression on second line",
			input: "a\n${b}",
			want:  []Segment{text("a\n"), expr("${b}", 2, 4)},
		},
		{
			name:  "single slash is division",
			input: "${a / b}",
			want:  []Segment{expr("${a / b}", 1, 8)},
		},
		{
			name:  "two expressions",
			input: "${a}${b}",
			want:  []Segment{expr("${a}", 1, 4), expr("${b}", 1, 8)},
		},
		{
			name:  "empty input",
			input: "",
			want:  nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Split(tt.input))
		})
	}
}

func TestScanReportsExpressionStarts(t *testing.T) {
	var c Collector
	Scan("ab\ncd ${x} ${unterminated", &c)

	require.Len(t, c.Starts, 2)
	assert.Equal(t, [2]int{2, 4}, c.Starts[0])
	assert.Equal(t, [2]int{2, 9}, c.Starts[1])
	assert.True(t, c.Unterminated())
	assert.Len(t, c.Expressions(), 1)
}

func TestScanCRLFCountsTwoLines(t *testing.T) {
	segs := Split("a\r\n${b}")
	require.Len(t, segs, 2)
	assert.Equal(t, 3, segs[1].Line)
}

func TestCommentEndsAtLineBreakInsideString(t *testing.T) {
	// The quote after the comment ends is a real string opener.
	segs := Split("${ // '\n '}' }")
	require.Len(t, segs, 1)
	assert.Equal(t, SegmentExpression, segs[0].Kind)
	assert.Equal(t, "${ // '\n '}' }", segs[0].Text)
}
