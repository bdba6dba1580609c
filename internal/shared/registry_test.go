package shared

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/pagetree/internal/doctree"
	"github.com/dgallion1/pagetree/internal/store"
)

func TestHiddenDocumentIsSingleton(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	r := NewRegistry(s, nil)

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			doc, err := r.HiddenDocument(ctx)
			if err == nil {
				ids[i] = doc.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	docs, err := s.FindNodes(ctx, store.Query{Kinds: []doctree.Kind{doctree.KindShadowDocument}})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, HiddenDocumentName, docs[0].Name)
}

func TestFindByName(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	r := NewRegistry(s, nil)

	tpl := doctree.NewTemplate("footer", "<footer></footer>")
	require.NoError(t, r.Create(ctx, tpl))

	// A reference to another component with the same name must be skipped.
	ref := doctree.NewElement("nav")
	ref.Name = "menu"
	ref.SharedComponentID = "elsewhere"
	require.NoError(t, r.Create(ctx, ref))
	comp := doctree.NewElement("nav")
	comp.Name = "menu"
	require.NoError(t, r.Create(ctx, comp))

	// Nested nodes are not top-level and never match.
	nested := doctree.NewTemplate("inner", "")
	require.NoError(t, r.Create(ctx, nested))
	require.NoError(t, s.Link(ctx, comp.ID, nested.ID, 0))

	got, err := r.FindByName(ctx, "footer", LookupTemplate)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, tpl.ID, got.ID)

	got, err = r.FindByName(ctx, "menu", LookupComponent)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, comp.ID, got.ID)

	got, err = r.FindByName(ctx, "menu", LookupTemplate)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = r.FindByName(ctx, "inner", LookupTemplate)
	require.NoError(t, err)
	assert.Nil(t, got)

	// Templates in ordinary pages are not shared.
	page := doctree.NewPage("index")
	require.NoError(t, s.CreateNode(ctx, page))
	local := doctree.NewTemplate("local", "")
	local.DocumentID = page.ID
	require.NoError(t, s.CreateNode(ctx, local))
	got, err = r.FindByName(ctx, "local", LookupTemplate)
	require.NoError(t, err)
	assert.Nil(t, got)

	shared, err := r.IsShared(ctx, tpl)
	require.NoError(t, err)
	assert.True(t, shared)
}

func TestRenamePropagatesToSyncedNodes(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	r := NewRegistry(s, nil)

	comp := doctree.NewComponent("card")
	require.NoError(t, r.Create(ctx, comp))
	for i := 0; i < 2; i++ {
		clone := doctree.NewComponent("card")
		clone.SharedComponentID = comp.ID
		require.NoError(t, s.CreateNode(ctx, clone))
	}

	require.NoError(t, r.Rename(ctx, comp.ID, "tile"))
	synced, err := r.SyncedNodes(ctx, comp.ID)
	require.NoError(t, err)
	require.Len(t, synced, 2)
	for _, n := range synced {
		assert.Equal(t, "tile", n.Name)
	}

	missing, err := r.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
