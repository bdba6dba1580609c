package dom

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/pagetree/internal/doctree"
	"github.com/dgallion1/pagetree/internal/store"
)

type fixture struct {
	ctx   context.Context
	store *store.MemoryStore
	m     *Manager
	page  *doctree.Node
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{ctx: context.Background(), store: store.NewMemoryStore()}
	f.m = NewManager(f.store, opts...)
	f.page = doctree.NewPage("index")
	require.NoError(t, f.store.CreateNode(f.ctx, f.page))
	return f
}

func (f *fixture) element(t *testing.T, tag string) *doctree.Node {
	t.Helper()
	n := doctree.NewElement(tag)
	n.DocumentID = f.page.ID
	require.NoError(t, f.store.CreateNode(f.ctx, n))
	return n
}

func (f *fixture) text(t *testing.T, content string) *doctree.Node {
	t.Helper()
	n := doctree.NewText(content, "")
	n.DocumentID = f.page.ID
	require.NoError(t, f.store.CreateNode(f.ctx, n))
	return n
}

// assertOrder checks both the child order and the dense positions.
func (f *fixture) assertOrder(t *testing.T, parent *doctree.Node, want ...*doctree.Node) {
	t.Helper()
	rels, err := f.store.Children(f.ctx, parent.ID)
	require.NoError(t, err)
	require.Len(t, rels, len(want))
	for i, r := range rels {
		assert.Equal(t, i, r.Position, "position %d", i)
		assert.Equal(t, want[i].ID, r.ChildID, "child %d", i)
	}
}

func TestManager_PositionsStayDense(t *testing.T) {
	f := newFixture(t)
	ul := f.element(t, "ul")
	a, b, c, d, e := f.element(t, "li"), f.element(t, "li"), f.element(t, "li"), f.element(t, "li"), f.element(t, "li")

	require.NoError(t, f.m.AppendChild(f.ctx, ul, a))
	require.NoError(t, f.m.AppendChild(f.ctx, ul, b))
	require.NoError(t, f.m.AppendChild(f.ctx, ul, c))
	f.assertOrder(t, ul, a, b, c)

	require.NoError(t, f.m.InsertBefore(f.ctx, ul, d, b))
	f.assertOrder(t, ul, a, d, b, c)

	require.NoError(t, f.m.InsertAfter(f.ctx, ul, e, c))
	f.assertOrder(t, ul, a, d, b, c, e)

	require.NoError(t, f.m.InsertBefore(f.ctx, ul, e, nil))
	f.assertOrder(t, ul, a, d, b, c, e)

	// Moving an existing child within the same parent.
	require.NoError(t, f.m.InsertBefore(f.ctx, ul, e, a))
	f.assertOrder(t, ul, e, a, d, b, c)

	require.NoError(t, f.m.RemoveChild(f.ctx, ul, d))
	f.assertOrder(t, ul, e, a, b, c)

	x := f.element(t, "li")
	require.NoError(t, f.m.ReplaceChild(f.ctx, ul, x, b))
	f.assertOrder(t, ul, e, a, x, c)

	stored, err := f.store.GetNode(f.ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.ParentID)
}

func TestManager_AppendMovesBetweenParents(t *testing.T) {
	f := newFixture(t)
	left, right := f.element(t, "div"), f.element(t, "div")
	a, b, c := f.element(t, "p"), f.element(t, "p"), f.element(t, "p")
	for _, n := range []*doctree.Node{a, b, c} {
		require.NoError(t, f.m.AppendChild(f.ctx, left, n))
	}

	require.NoError(t, f.m.AppendChild(f.ctx, right, a))
	f.assertOrder(t, left, b, c)
	f.assertOrder(t, right, a)
	assert.Equal(t, right.ID, a.ParentID)
}

func TestManager_RefMustBeChild(t *testing.T) {
	f := newFixture(t)
	ul, other := f.element(t, "ul"), f.element(t, "ol")
	stranger := f.element(t, "li")
	require.NoError(t, f.m.AppendChild(f.ctx, other, stranger))

	err := f.m.InsertBefore(f.ctx, ul, f.element(t, "li"), stranger)
	require.ErrorIs(t, err, doctree.ErrDOM)
	assert.Equal(t, doctree.NotFoundErr, doctree.CodeOf(err))

	err = f.m.RemoveChild(f.ctx, ul, stranger)
	assert.Equal(t, doctree.NotFoundErr, doctree.CodeOf(err))
}

func TestManager_HierarchyRules(t *testing.T) {
	f := newFixture(t)
	div := f.element(t, "div")
	span := f.element(t, "span")
	txt := f.text(t, "hello")

	other := doctree.NewPage("other")
	require.NoError(t, f.store.CreateNode(f.ctx, other))
	err := f.m.AppendChild(f.ctx, div, other)
	assert.Equal(t, doctree.HierarchyRequestErr, doctree.CodeOf(err))

	err = f.m.AppendChild(f.ctx, txt, span)
	assert.Equal(t, doctree.HierarchyRequestErr, doctree.CodeOf(err))

	err = f.m.AppendChild(f.ctx, div, div)
	assert.Equal(t, doctree.HierarchyRequestErr, doctree.CodeOf(err))

	require.NoError(t, f.m.AppendChild(f.ctx, div, span))
	err = f.m.AppendChild(f.ctx, span, div)
	assert.Equal(t, doctree.HierarchyRequestErr, doctree.CodeOf(err), "cycles are rejected")
}

func TestManager_SameDocument(t *testing.T) {
	f := newFixture(t)
	div := f.element(t, "div")

	foreignPage := doctree.NewPage("foreign")
	require.NoError(t, f.store.CreateNode(f.ctx, foreignPage))
	foreign := doctree.NewElement("p")
	foreign.DocumentID = foreignPage.ID
	require.NoError(t, f.store.CreateNode(f.ctx, foreign))

	err := f.m.AppendChild(f.ctx, div, foreign)
	assert.Equal(t, doctree.WrongDocumentErr, doctree.CodeOf(err))

	orphan := doctree.NewElement("p")
	orphanChild := doctree.NewText("x", "")
	require.NoError(t, f.store.CreateNode(f.ctx, orphan))
	require.NoError(t, f.store.CreateNode(f.ctx, orphanChild))
	require.NoError(t, f.m.AppendChild(f.ctx, orphan, orphanChild))

	require.NoError(t, f.m.AppendChild(f.ctx, div, orphan))
	for _, id := range []string{orphan.ID, orphanChild.ID} {
		stored, err := f.store.GetNode(f.ctx, id)
		require.NoError(t, err)
		assert.Equal(t, f.page.ID, stored.DocumentID, "subtree is adopted")
	}
}

func TestManager_AdoptChildMovesSubtree(t *testing.T) {
	f := newFixture(t)
	div := f.element(t, "div")

	other := doctree.NewPage("other")
	require.NoError(t, f.store.CreateNode(f.ctx, other))
	tpl := doctree.NewTemplate("", "")
	tpl.DocumentID = other.ID
	inner := doctree.NewElement("b")
	inner.DocumentID = other.ID
	require.NoError(t, f.store.CreateNode(f.ctx, tpl))
	require.NoError(t, f.store.CreateNode(f.ctx, inner))
	require.NoError(t, f.m.AppendChild(f.ctx, tpl, inner))

	require.NoError(t, f.m.AdoptChild(f.ctx, div, tpl))
	f.assertOrder(t, div, tpl)
	for _, id := range []string{tpl.ID, inner.ID} {
		stored, err := f.store.GetNode(f.ctx, id)
		require.NoError(t, err)
		assert.Equal(t, f.page.ID, stored.DocumentID, "descendants move with the adopted node")
	}
}

func TestManager_RejectedMutationWritesNothing(t *testing.T) {
	f := newFixture(t)
	div := f.element(t, "div")

	other := doctree.NewPage("other")
	require.NoError(t, f.store.CreateNode(f.ctx, other))
	err := f.m.AdoptChild(f.ctx, div, other)
	assert.Equal(t, doctree.HierarchyRequestErr, doctree.CodeOf(err))

	// An orphan is only adopted once the hierarchy check passes.
	orphan := doctree.NewElement("p")
	require.NoError(t, f.store.CreateNode(f.ctx, orphan))
	text := f.text(t, "leaf")
	err = f.m.AppendChild(f.ctx, text, orphan)
	assert.Equal(t, doctree.HierarchyRequestErr, doctree.CodeOf(err))
	stored, err := f.store.GetNode(f.ctx, orphan.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.DocumentID)

	// Foreign nodes still need AdoptChild.
	foreign := doctree.NewElement("p")
	foreign.DocumentID = other.ID
	require.NoError(t, f.store.CreateNode(f.ctx, foreign))
	err = f.m.AppendChild(f.ctx, div, foreign)
	assert.Equal(t, doctree.WrongDocumentErr, doctree.CodeOf(err))
	stored, err = f.store.GetNode(f.ctx, foreign.ID)
	require.NoError(t, err)
	assert.Equal(t, other.ID, stored.DocumentID)
}

func TestManager_WritePermission(t *testing.T) {
	f := newFixture(t, WithAuthorizer(GrantAuthorizer{Superuser: "admin"}))
	locked := doctree.NewElement("div")
	locked.DocumentID = f.page.ID
	locked.Grants = []doctree.Grant{{Principal: "alice", Permissions: []doctree.Permission{doctree.PermissionRead, doctree.PermissionWrite}}}
	require.NoError(t, f.store.CreateNode(f.ctx, locked))

	err := f.m.AppendChild(WithPrincipal(f.ctx, "bob"), locked, f.element(t, "p"))
	assert.Equal(t, doctree.NoModificationAllowedErr, doctree.CodeOf(err))

	assert.NoError(t, f.m.AppendChild(WithPrincipal(f.ctx, "alice"), locked, f.element(t, "p")))
	assert.NoError(t, f.m.AppendChild(WithPrincipal(f.ctx, "admin"), locked, f.element(t, "p")))
}

func TestManager_CloneDeepRemapsActionMappings(t *testing.T) {
	f := newFixture(t)
	form := f.element(t, "form")
	input := f.element(t, "input")
	button := f.element(t, "button")
	outside := f.element(t, "div")
	label := f.text(t, "Save")
	form.SetHTMLAttr("class", "editor")
	form.Props.Set("tag", "form")
	form.Grants = []doctree.Grant{{Principal: "alice", Permissions: []doctree.Permission{doctree.PermissionWrite}}}
	require.NoError(t, f.store.UpdateNode(f.ctx, form))

	require.NoError(t, f.m.AppendChild(f.ctx, form, input))
	require.NoError(t, f.m.AppendChild(f.ctx, form, button))
	require.NoError(t, f.m.AppendChild(f.ctx, button, label))

	require.NoError(t, f.store.SaveActionMapping(f.ctx, &doctree.ActionMapping{
		ID:             doctree.NewID(),
		ElementID:      button.ID,
		Event:          "click",
		Action:         "create",
		SuccessTargets: []string{form.ID, outside.ID},
		Parameters:     []doctree.ParameterMapping{{Name: "title", Type: "input", InputElementID: input.ID}},
	}))

	clone, err := f.m.CloneNode(f.ctx, form, true)
	require.NoError(t, err)
	assert.NotEqual(t, form.ID, clone.ID)
	assert.Equal(t, "form", clone.Tag)
	assert.False(t, clone.Props.Has("tag"))
	v, _ := clone.HTMLAttr("class")
	assert.Equal(t, "editor", v)
	require.Len(t, clone.Grants, 1)
	assert.Equal(t, "alice", clone.Grants[0].Principal)
	assert.Empty(t, clone.ParentID)

	kids, err := f.m.Children(f.ctx, clone.ID)
	require.NoError(t, err)
	require.Len(t, kids, 2)
	cInput, cButton := kids[0], kids[1]
	assert.Equal(t, "input", cInput.Tag)
	assert.Equal(t, "button", cButton.Tag)
	assert.NotEqual(t, input.ID, cInput.ID)

	grand, err := f.m.Children(f.ctx, cButton.ID)
	require.NoError(t, err)
	require.Len(t, grand, 1)
	assert.Equal(t, "Save", grand[0].Content())

	mappings, err := f.store.ActionMappings(f.ctx, cButton.ID)
	require.NoError(t, err)
	require.Len(t, mappings, 1)
	am := mappings[0]
	assert.Equal(t, []string{clone.ID, outside.ID}, am.SuccessTargets, "inside refs point at clones, outside refs are kept")
	assert.Equal(t, cInput.ID, am.Parameters[0].InputElementID)

	orig, err := f.store.ActionMappings(f.ctx, button.ID)
	require.NoError(t, err)
	require.Len(t, orig, 1)
	assert.Equal(t, input.ID, orig[0].Parameters[0].InputElementID, "original mapping untouched")
}

func TestManager_CloneShallow(t *testing.T) {
	f := newFixture(t)
	div := f.element(t, "div")
	require.NoError(t, f.m.AppendChild(f.ctx, div, f.element(t, "p")))
	div.SharedComponentID = "origin"
	require.NoError(t, f.store.UpdateNode(f.ctx, div))

	clone, err := f.m.CloneNode(f.ctx, div, false)
	require.NoError(t, err)
	kids, err := f.m.Children(f.ctx, clone.ID)
	require.NoError(t, err)
	assert.Empty(t, kids)
	assert.Empty(t, clone.SharedComponentID)
}

func TestManager_ClosestPageThroughSyncedNodes(t *testing.T) {
	f := newFixture(t)
	html := f.element(t, "html")
	body := f.element(t, "body")
	require.NoError(t, f.m.AppendChild(f.ctx, f.page, html))
	require.NoError(t, f.m.AppendChild(f.ctx, html, body))

	ancestors, err := f.m.Ancestors(f.ctx, body)
	require.NoError(t, err)
	require.Len(t, ancestors, 2)
	assert.Equal(t, html.ID, ancestors[0].ID)
	assert.Equal(t, f.page.ID, ancestors[1].ID)

	// A shared component living outside the page, included once in body.
	shadow := doctree.New(doctree.KindShadowDocument)
	require.NoError(t, f.store.CreateNode(f.ctx, shadow))
	comp := doctree.NewElement("nav")
	comp.DocumentID = shadow.ID
	inner := doctree.NewElement("a")
	inner.DocumentID = shadow.ID
	require.NoError(t, f.store.CreateNode(f.ctx, comp))
	require.NoError(t, f.store.CreateNode(f.ctx, inner))
	require.NoError(t, f.m.AppendChild(f.ctx, comp, inner))

	synced := f.element(t, "nav")
	synced.SharedComponentID = comp.ID
	require.NoError(t, f.store.UpdateNode(f.ctx, synced))
	require.NoError(t, f.m.AppendChild(f.ctx, body, synced))

	page, err := f.m.ClosestPage(f.ctx, inner)
	require.NoError(t, err)
	require.NotNil(t, page)
	assert.Equal(t, f.page.ID, page.ID)

	tpl, err := f.m.ClosestTemplate(f.ctx, inner)
	require.NoError(t, err)
	assert.Nil(t, tpl)
}

func TestManager_ClosestTemplate(t *testing.T) {
	f := newFixture(t)
	tpl := doctree.NewTemplate("card", "<div></div>")
	tpl.DocumentID = f.page.ID
	require.NoError(t, f.store.CreateNode(f.ctx, tpl))
	p := f.element(t, "p")
	require.NoError(t, f.m.AppendChild(f.ctx, tpl, p))

	got, err := f.m.ClosestTemplate(f.ctx, p)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, tpl.ID, got.ID)
}

func TestManager_DeleteSubtree(t *testing.T) {
	f := newFixture(t)
	ul := f.element(t, "ul")
	a, b := f.element(t, "li"), f.element(t, "li")
	txt := f.text(t, "one")
	require.NoError(t, f.m.AppendChild(f.ctx, ul, a))
	require.NoError(t, f.m.AppendChild(f.ctx, ul, b))
	require.NoError(t, f.m.AppendChild(f.ctx, a, txt))

	require.NoError(t, f.m.DeleteSubtree(f.ctx, a))
	f.assertOrder(t, ul, b)
	_, err := f.store.GetNode(f.ctx, txt.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestManager_RenderMarkup(t *testing.T) {
	f := newFixture(t)
	div := f.element(t, "div")
	div.SetHTMLAttr("id", "main")
	div.SetHTMLAttr("class", "a b")
	div.Props.Set("data-role", "box")
	div.Props.Set(doctree.PropHasExpressions, false)
	require.NoError(t, f.store.UpdateNode(f.ctx, div))

	img := f.element(t, "img")
	img.SetHTMLAttr("alt", `say "hi"`)
	require.NoError(t, f.store.UpdateNode(f.ctx, img))

	comment := doctree.NewComment(" note ")
	comment.DocumentID = f.page.ID
	require.NoError(t, f.store.CreateNode(f.ctx, comment))

	require.NoError(t, f.m.AppendChild(f.ctx, div, f.text(t, "a < b")))
	require.NoError(t, f.m.AppendChild(f.ctx, div, img))
	require.NoError(t, f.m.AppendChild(f.ctx, div, comment))

	out, err := f.m.RenderMarkup(f.ctx, div)
	require.NoError(t, err)
	assert.Equal(t, `<div id="main" class="a b" data-role="box">a &lt; b<img alt="say &#34;hi&#34;"><!-- note --></div>`, out)
}
