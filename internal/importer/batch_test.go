package importer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/pagetree/internal/doctree"
	"github.com/dgallion1/pagetree/internal/store"
)

func TestRunBatches(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	results := RunBatches(ctx, s, []Source{
		{Name: "home", Kind: SourceDocument, Content: "<html><body><p>x</p></body></html>"},
		{Name: "", Kind: SourceDocument, Content: "<p>no name</p>"},
		{Name: "card", Kind: SourceFragment, Content: "<div>card</div>"},
		{Name: "notes", Kind: SourceMarkdown, Content: "# Notes"},
	})
	require.Len(t, results, 4)

	assert.NoError(t, results[0].Err)
	assert.Equal(t, "home", results[0].Result.Root.Name)

	assert.ErrorIs(t, results[1].Err, ErrMissingParameter)
	assert.Nil(t, results[1].Result)

	require.NoError(t, results[2].Err)
	frag := results[2].Result.Root
	assert.Equal(t, doctree.KindPage, frag.Kind)
	assert.Equal(t, "card", frag.Name)

	require.NoError(t, results[3].Err)

	pages, err := s.FindNodes(ctx, store.Query{Kinds: []doctree.Kind{doctree.KindPage}})
	require.NoError(t, err)
	assert.Len(t, pages, 3, "the failed batch left nothing behind")
}

func TestRunBatches_StopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := store.NewMemoryStore()

	results := RunBatches(ctx, s, []Source{
		{Name: "a", Kind: SourceDocument, Content: "<p>a</p>"},
		{Name: "b", Kind: SourceDocument, Content: "<p>b</p>"},
	})
	require.Len(t, results, 2)
	for _, r := range results {
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
	pages, err := s.FindNodes(context.Background(), store.Query{Kinds: []doctree.Kind{doctree.KindPage}})
	require.NoError(t, err)
	assert.Empty(t, pages)
}

func TestSourceKindString(t *testing.T) {
	assert.Equal(t, "fragment", SourceFragment.String())
	assert.Equal(t, "SourceKind(9)", SourceKind(9).String())
}
