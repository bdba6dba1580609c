package scanner

// SegmentKind tells literal text from expression regions.
type SegmentKind int

const (
	SegmentText SegmentKind = iota
	SegmentExpression
	SegmentUnterminated
)

// Segment is one region reported by the scanner.
type Segment struct {
	Kind   SegmentKind
	Text   string
	Line   int
	Column int
}

// Collector is a Handler that records every segment in order.
type Collector struct {
	Segments []Segment
	// Starts records the position of every ${ opener, including ones that
	// never terminate.
	Starts [][2]int
}

func (c *Collector) OnText(text string) {
	c.Segments = append(c.Segments, Segment{Kind: SegmentText, Text: text})
}

func (c *Collector) OnExpression(text string, line, column int) {
	c.Segments = append(c.Segments, Segment{Kind: SegmentExpression, Text: text, Line: line, Column: column})
}

func (c *Collector) OnUnterminatedExpression(text string) {
	c.Segments = append(c.Segments, Segment{Kind: SegmentUnterminated, Text: text})
}

func (c *Collector) OnPossibleExpressionStart(line, column int) {
	c.Starts = append(c.Starts, [2]int{line, column})
}

// Expressions returns the terminated expression regions.
func (c *Collector) Expressions() []Segment {
	var out []Segment
	for _, s := range c.Segments {
		if s.Kind == SegmentExpression {
			out = append(out, s)
		}
	}
	return out
}

// Unterminated reports whether the input ended inside an expression.
func (c *Collector) Unterminated() bool {
	for _, s := range c.Segments {
		if s.Kind == SegmentUnterminated {
			return true
		}
	}
	return false
}

// Split scans input and returns its segments.
func Split(input string) []Segment {
	var c Collector
	Scan(input, &c)
	return c.Segments
}
