package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/html"

	"github.com/dgallion1/pagetree/internal/dom"
	"github.com/dgallion1/pagetree/internal/doctree"
	"github.com/dgallion1/pagetree/internal/fetch"
	"github.com/dgallion1/pagetree/internal/parser"
	"github.com/dgallion1/pagetree/internal/shared"
	"github.com/dgallion1/pagetree/internal/store"
)

// ErrMissingParameter is returned before any work starts when a required
// argument is absent.
var ErrMissingParameter = errors.New("missing required parameter")

// Fetcher downloads linked resources.
type Fetcher interface {
	Get(ctx context.Context, url string) (*fetch.Resource, error)
}

// InstructionHandler applies deployment instructions found in comments.
type InstructionHandler interface {
	ContainsInstructions(comment string) bool
	Handle(ctx context.Context, doc, node *doctree.Node, comment string, apply bool) (bool, error)
}

// Evaluator runs inline scripts marked for execution during import.
type Evaluator interface {
	Evaluate(ctx context.Context, node *doctree.Node, source string) (any, error)
}

// SchemaImporter receives schema definitions embedded in script elements.
type SchemaImporter interface {
	ImportSchema(ctx context.Context, source string) error
}

// Importer turns markup into persisted document trees.
type Importer struct {
	store        store.Store
	dom          *dom.Manager
	shared       *shared.Registry
	files        *store.FileStore
	fetcher      Fetcher
	instructions InstructionHandler
	eval         Evaluator
	schema       SchemaImporter
	keys         PropertyKeys

	baseURL            string
	deployment         bool
	relativeVisibility bool
	publicVisible      bool
	authVisible        bool
	pdfFallback        bool

	log *slog.Logger
}

type Option func(*Importer)

func WithFetcher(f Fetcher) Option { return func(i *Importer) { i.fetcher = f } }

func WithLogger(log *slog.Logger) Option { return func(i *Importer) { i.log = log } }

func WithInstructionHandler(h InstructionHandler) Option {
	return func(i *Importer) { i.instructions = h }
}

func WithEvaluator(e Evaluator) Option { return func(i *Importer) { i.eval = e } }

func WithSchemaImporter(s SchemaImporter) Option { return func(i *Importer) { i.schema = s } }

// WithPropertyKeys replaces the registry of data-structr-meta-* keys.
func WithPropertyKeys(k PropertyKeys) Option { return func(i *Importer) { i.keys = k } }

// WithBaseURL sets the address relative resource references resolve against.
func WithBaseURL(base string) Option { return func(i *Importer) { i.baseURL = base } }

// WithVisibility sets the visibility flags of new pages and, in deployment
// mode, of every imported node.
func WithVisibility(public, auth bool) Option {
	return func(i *Importer) { i.publicVisible, i.authVisible = public, auth }
}

// WithDeployment turns on deployment mode: no downloads, fixed visibility.
func WithDeployment(on bool) Option { return func(i *Importer) { i.deployment = on } }

// WithRelativeVisibility makes deployment imports inherit visibility from
// the parent instead of using the fixed flags.
func WithRelativeVisibility(on bool) Option {
	return func(i *Importer) { i.relativeVisibility = on }
}

// WithPDFFallback lets PDF text extraction fall back to pdftotext.
func WithPDFFallback(on bool) Option { return func(i *Importer) { i.pdfFallback = on } }

// WithFileStore stores downloaded bytes on disk.
func WithFileStore(fs *store.FileStore) Option { return func(i *Importer) { i.files = fs } }

// New creates an Importer writing to s.
func New(s store.Store, opts ...Option) *Importer {
	imp := &Importer{store: s}
	for _, opt := range opts {
		opt(imp)
	}
	if imp.log == nil {
		imp.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if imp.keys == nil {
		imp.keys = DefaultPropertyKeys()
	}
	imp.dom = dom.NewManager(s, dom.WithLogger(imp.log))
	imp.shared = shared.NewRegistry(s, imp.log)
	return imp
}

// DOM returns the tree manager bound to the importer's store.
func (imp *Importer) DOM() *dom.Manager { return imp.dom }

// Result is what one import produced.
type Result struct {
	Root *doctree.Node
	// Deferred lists property values that can only be converted once the
	// whole subtree exists. Pass them to ResolveDeferred.
	Deferred []DeferredProperty
	Report   RunSnapshot
	// CommentSource holds the raw text of every materialized comment.
	CommentSource string
}

// ImportFragment imports src below parent, which must already be stored.
func (imp *Importer) ImportFragment(ctx context.Context, src string, parent *doctree.Node) (*Result, error) {
	if parent == nil {
		return nil, fmt.Errorf("import fragment: parent: %w", ErrMissingParameter)
	}
	base, err := imp.base(imp.baseURL)
	if err != nil {
		return nil, err
	}
	root, err := parser.ParseString(src, parser.DetectMode(src))
	if err != nil {
		return nil, fmt.Errorf("import fragment: %w", err)
	}

	var doc *doctree.Node
	if id := parent.DocumentOf(); id != "" {
		if doc, err = imp.store.GetNode(ctx, id); err != nil {
			return nil, fmt.Errorf("import fragment: owning document: %w", err)
		}
	}
	r := imp.startRun(parent.String(), doc, base)
	return r.finish(parent, r.importChildren(ctx, root, parent, 0))
}

// ImportDocument creates a page called name from a whole HTML document.
func (imp *Importer) ImportDocument(ctx context.Context, src, name string) (*Result, error) {
	base, err := imp.base(imp.baseURL)
	if err != nil {
		return nil, err
	}
	root, err := parser.ParseString(src, parser.ModeDocument)
	if err != nil {
		return nil, fmt.Errorf("import document: %w", err)
	}
	return imp.importPage(ctx, root, name, base, nil)
}

// ImportMarkdown creates a page called name from Markdown source.
func (imp *Importer) ImportMarkdown(ctx context.Context, src, name string) (*Result, error) {
	base, err := imp.base(imp.baseURL)
	if err != nil {
		return nil, err
	}
	root, err := parser.ParseString(src, parser.ModeMarkdown)
	if err != nil {
		return nil, fmt.Errorf("import markdown: %w", err)
	}
	return imp.importPage(ctx, root, name, base, nil)
}

// ImportDocumentFromURL fetches a document and imports it as a page.
// Relative resources resolve against the document's address.
func (imp *Importer) ImportDocumentFromURL(ctx context.Context, address, name string) (*Result, error) {
	if imp.fetcher == nil {
		return nil, fmt.Errorf("import %s: fetcher: %w", address, ErrMissingParameter)
	}
	base, err := imp.base(address)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = pageName(base)
	}
	res, err := imp.fetcher.Get(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", address, err)
	}
	root, err := parser.ParseReader(bytes.NewReader(res.Data), res.ContentType, parser.ModeDocument)
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", address, err)
	}
	return imp.importPage(ctx, root, name, base, func(page *doctree.Node) {
		page.Props.Set(doctree.PropOriginalURL, address)
	})
}

// ImportComponentHull creates a shared component from the outermost
// element of src without importing its children.
func (imp *Importer) ImportComponentHull(ctx context.Context, src, name string) (*Result, error) {
	root, err := parser.ParseString(src, parser.DetectMode(src))
	if err != nil {
		return nil, fmt.Errorf("import component hull: %w", err)
	}
	var outer *html.Node
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			outer = c
			break
		}
	}
	if outer == nil {
		return nil, fmt.Errorf("import component hull: element: %w", ErrMissingParameter)
	}
	tag := cleanTag(outer.Data)
	if tag == "" {
		return nil, fmt.Errorf("import component hull: invalid tag %q", outer.Data)
	}

	doc, err := imp.shared.HiddenDocument(ctx)
	if err != nil {
		return nil, err
	}
	r := imp.startRun(name, doc, nil)
	n := doctree.NewElement(tag)
	n.Name = name
	r.applyVisibility(n, nil)
	r.mapAttributes(ctx, outer, n, tag)
	if err := imp.shared.Create(ctx, n); err != nil {
		return nil, err
	}
	r.state.run.IncrNodesCreated()
	return r.finish(n, nil)
}

// ParsePageFromSource parses src and imports it as page name in one unit
// of work on s, resolving deferred properties before committing.
func ParsePageFromSource(ctx context.Context, s store.Store, src, name string, opts ...Option) (*doctree.Node, error) {
	var page *doctree.Node
	err := s.WithTx(ctx, func(tx store.Store) error {
		imp := New(tx, opts...)
		res, err := imp.ImportDocument(ctx, src, name)
		if err != nil {
			return err
		}
		if err := imp.ResolveDeferred(ctx, res.Deferred); err != nil {
			return err
		}
		page = res.Root
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse page %s: %w", name, err)
	}
	return page, nil
}

func (imp *Importer) importPage(ctx context.Context, root *html.Node, name string, base *url.URL, setup func(*doctree.Node)) (*Result, error) {
	if name == "" {
		return nil, fmt.Errorf("import page: name: %w", ErrMissingParameter)
	}
	page := doctree.NewPage(name)
	page.VisibleToPublic = imp.publicVisible
	page.VisibleToAuth = imp.authVisible
	if setup != nil {
		setup(page)
	}
	if err := imp.store.CreateNode(ctx, page); err != nil {
		return nil, fmt.Errorf("create page %s: %w", name, err)
	}
	r := imp.startRun(name, page, base)
	r.state.run.IncrNodesCreated()
	return r.finish(page, r.importChildren(ctx, root, page, 0))
}

func (imp *Importer) base(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("base url %q: %w", raw, err)
	}
	return u, nil
}

func pageName(u *url.URL) string {
	name := strings.TrimSuffix(path.Base(u.Path), path.Ext(u.Path))
	if name == "" || name == "." || name == "/" {
		return "index"
	}
	return name
}

// runState is shared by every run of one import, including the nested
// runs that fill synthesized shared components.
type runState struct {
	run       *Run
	linkables map[string]*doctree.Node // keyed by normalized path, nil marks a failed download
	deferred  []DeferredProperty
	comments  strings.Builder
}

// run walks markup into one owning document.
type run struct {
	imp   *Importer
	state *runState
	doc   *doctree.Node
	base  *url.URL
	log   *slog.Logger
}

func (imp *Importer) startRun(source string, doc *doctree.Node, base *url.URL) *run {
	state := &runState{
		run:       newRun(source),
		linkables: make(map[string]*doctree.Node),
	}
	r := &run{imp: imp, state: state, base: base}
	r.setDocument(doc)
	r.state.run.SetStatus(StatusRunning, "importing")
	return r
}

func (r *run) setDocument(doc *doctree.Node) {
	r.doc = doc
	r.log = r.imp.log.With("run_id", r.state.run.ID, "page", documentName(doc))
}

// within returns a run importing into doc that shares this run's state.
func (r *run) within(doc *doctree.Node) *run {
	sub := &run{imp: r.imp, state: r.state, base: r.base}
	sub.setDocument(doc)
	return sub
}

func (r *run) documentID() string {
	if r.doc == nil {
		return ""
	}
	return r.doc.ID
}

func (r *run) warn(msg string, args ...any) {
	r.log.Warn(msg, args...)
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i+1 < len(args); i += 2 {
		fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
	}
	r.state.run.AddWarning(b.String())
}

func (r *run) finish(root *doctree.Node, err error) (*Result, error) {
	if err != nil {
		r.state.run.AddError(err.Error())
		r.state.run.SetStatus(StatusFailed, "failed")
		r.log.Error("import failed", "error", err)
		return nil, err
	}
	r.state.run.SetStatus(StatusCompleted, "done")
	snap := r.state.run.Snapshot()
	r.log.Info("import complete",
		"nodes", snap.Progress.NodesCreated,
		"files", snap.Progress.FilesDownloaded,
		"warnings", len(snap.Progress.Warnings),
	)
	return &Result{
		Root:          root,
		Deferred:      r.state.deferred,
		Report:        snap,
		CommentSource: r.state.comments.String(),
	}, nil
}

func documentName(doc *doctree.Node) string {
	if doc == nil {
		return ""
	}
	return doc.Name
}
