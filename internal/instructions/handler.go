// Package instructions applies deployment instructions carried in markup
// comments, such as <!-- @structr:private @structr:name(header) -->, to the
// node that follows them.
package instructions

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/dgallion1/pagetree/internal/doctree"
)

var instructionPattern = regexp.MustCompile(`@structr:([a-z-]+)(?:\(([^)]*)\))?`)

// Instruction is one parsed @structr: directive.
type Instruction struct {
	Name string
	Arg  string
}

// Parse extracts the instructions from a comment.
func Parse(comment string) []Instruction {
	var out []Instruction
	for _, m := range instructionPattern.FindAllStringSubmatch(comment, -1) {
		out = append(out, Instruction{Name: m[1], Arg: strings.TrimSpace(m[2])})
	}
	return out
}

// DeploymentHandler understands the instructions written by the exporter.
type DeploymentHandler struct {
	log *slog.Logger
}

func NewDeploymentHandler(log *slog.Logger) *DeploymentHandler {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &DeploymentHandler{log: log}
}

// ContainsInstructions reports whether comment carries any instruction.
func (h *DeploymentHandler) ContainsInstructions(comment string) bool {
	return instructionPattern.MatchString(comment)
}

// Handle applies the instructions in comment to node when apply is set.
// It reports whether at least one instruction was recognized. Unknown
// instructions are logged and skipped.
func (h *DeploymentHandler) Handle(ctx context.Context, doc, node *doctree.Node, comment string, apply bool) (bool, error) {
	handled := false
	for _, in := range Parse(comment) {
		ok, err := h.handleOne(node, in, apply)
		if err != nil {
			return handled, fmt.Errorf("instruction %s on %s: %w", in.Name, node, err)
		}
		if !ok {
			h.log.Warn("unknown instruction", "instruction", in.Name, "page", docName(doc))
			continue
		}
		handled = true
	}
	return handled, nil
}

func (h *DeploymentHandler) handleOne(node *doctree.Node, in Instruction, apply bool) (bool, error) {
	var fn func()
	switch in.Name {
	case "content":
		if in.Arg == "" {
			return true, fmt.Errorf("missing content type")
		}
		fn = func() { node.SetContentType(in.Arg) }
	case "public":
		fn = func() { node.VisibleToPublic, node.VisibleToAuth = true, true }
	case "public-only":
		fn = func() { node.VisibleToPublic, node.VisibleToAuth = true, false }
	case "protected":
		fn = func() { node.VisibleToPublic, node.VisibleToAuth = false, true }
	case "private":
		fn = func() { node.VisibleToPublic, node.VisibleToAuth = false, false }
	case "id":
		if !doctree.IsID(in.Arg) {
			return true, fmt.Errorf("invalid id %q", in.Arg)
		}
		fn = func() { node.ID = in.Arg }
	case "name", "shared-template":
		fn = func() { node.Name = in.Arg }
	case "show":
		fn = func() { node.Props.Set(doctree.PropShowConditions, in.Arg) }
	case "hide":
		fn = func() { node.Props.Set(doctree.PropHideConditions, in.Arg) }
	default:
		return false, nil
	}
	if apply {
		fn()
	}
	return true, nil
}

func docName(doc *doctree.Node) string {
	if doc == nil {
		return ""
	}
	return doc.Name
}
