package importer

import (
	"context"
	"fmt"

	"github.com/dgallion1/pagetree/internal/doctree"
	"github.com/dgallion1/pagetree/internal/store"
)

// SourceKind tells RunBatches how to read a Source.
type SourceKind int

const (
	SourceDocument SourceKind = iota
	SourceFragment
	SourceMarkdown
	SourceURL
)

func (k SourceKind) String() string {
	switch k {
	case SourceDocument:
		return "document"
	case SourceFragment:
		return "fragment"
	case SourceMarkdown:
		return "markdown"
	case SourceURL:
		return "url"
	}
	return fmt.Sprintf("SourceKind(%d)", int(k))
}

// Source is one page to import. Content is markup, or the address for
// SourceURL. A fragment is imported below a new empty page called Name.
type Source struct {
	Name    string
	Kind    SourceKind
	Content string
}

// BatchResult is the outcome of one Source.
type BatchResult struct {
	Source Source
	Result *Result
	Err    error
}

// RunBatches imports every source in its own unit of work on s, resolving
// deferred properties before each commit. A failed batch is rolled back
// and reported without stopping the others. Once ctx is done no further
// batch is started.
func RunBatches(ctx context.Context, s store.Store, sources []Source, opts ...Option) []BatchResult {
	results := make([]BatchResult, 0, len(sources))
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			results = append(results, BatchResult{Source: src, Err: err})
			continue
		}
		var res *Result
		err := s.WithTx(ctx, func(tx store.Store) error {
			imp := New(tx, opts...)
			var err error
			if res, err = imp.importSource(ctx, tx, src); err != nil {
				return err
			}
			return imp.ResolveDeferred(ctx, res.Deferred)
		})
		if err != nil {
			res = nil
			err = fmt.Errorf("import %s %q: %w", src.Kind, src.Name, err)
		}
		results = append(results, BatchResult{Source: src, Result: res, Err: err})
	}
	return results
}

func (imp *Importer) importSource(ctx context.Context, s store.Store, src Source) (*Result, error) {
	switch src.Kind {
	case SourceDocument:
		return imp.ImportDocument(ctx, src.Content, src.Name)
	case SourceMarkdown:
		return imp.ImportMarkdown(ctx, src.Content, src.Name)
	case SourceURL:
		return imp.ImportDocumentFromURL(ctx, src.Content, src.Name)
	case SourceFragment:
		if src.Name == "" {
			return nil, fmt.Errorf("import fragment: name: %w", ErrMissingParameter)
		}
		page := doctree.NewPage(src.Name)
		page.VisibleToPublic = imp.publicVisible
		page.VisibleToAuth = imp.authVisible
		if err := s.CreateNode(ctx, page); err != nil {
			return nil, fmt.Errorf("create page %s: %w", src.Name, err)
		}
		return imp.ImportFragment(ctx, src.Content, page)
	}
	return nil, fmt.Errorf("unknown source kind %s", src.Kind)
}
