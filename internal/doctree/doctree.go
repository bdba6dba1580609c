package doctree

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind discriminates the persisted node variants.
type Kind string

const (
	KindPage           Kind = "page"
	KindShadowDocument Kind = "shadow-document"
	KindElement        Kind = "element"
	KindText           Kind = "text"
	KindComment        Kind = "comment"
	KindTemplate       Kind = "template"
	KindComponent      Kind = "component"
	KindFile           Kind = "file"
	KindImage          Kind = "image"
)

// IsDocument reports whether nodes of this kind own other nodes.
func (k Kind) IsDocument() bool {
	return k == KindPage || k == KindShadowDocument
}

// IsLinkable reports whether nodes of this kind are downloadable resources.
func (k Kind) IsLinkable() bool {
	return k == KindFile || k == KindImage
}

// IsContent reports whether nodes of this kind carry a content payload.
func (k Kind) IsContent() bool {
	return k == KindText || k == KindComment || k == KindTemplate
}

// Permission is a single access right that can be granted on a node.
type Permission string

const (
	PermissionRead          Permission = "read"
	PermissionWrite         Permission = "write"
	PermissionDelete        Permission = "delete"
	PermissionAccessControl Permission = "accessControl"
)

// Grant gives a principal a set of permissions on a node.
type Grant struct {
	Principal   string       `json:"principal"`
	Permissions []Permission `json:"permissions"`
}

// Allows reports whether the grant includes p.
func (g Grant) Allows(p Permission) bool {
	for _, have := range g.Permissions {
		if have == p {
			return true
		}
	}
	return false
}

// Node is one persisted node of a document tree.
type Node struct {
	ID   string
	Kind Kind
	Tag  string // element tag name, empty for other kinds
	Name string

	DocumentID        string // owning document (page or shadow document)
	ParentID          string // maintained by the store alongside the child relationship
	SharedComponentID string // non-owning pointer to the shared origin of a synced node
	LinkableID        string // downloaded resource an element points at

	// Linkable fields, only set on file and image nodes.
	Path     string
	Checksum string

	VisibleToPublic bool
	VisibleToAuth   bool

	Props  Properties
	Grants []Grant

	CreatedAt time.Time
}

// NewID returns a fresh opaque node id: 32 lower-case hex characters.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// IsID reports whether s looks like a node id rather than a name.
func IsID(s string) bool {
	if len(s) != 32 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

func newNode(kind Kind) *Node {
	return &Node{
		ID:        NewID(),
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
	}
}

// NewPage creates an unsaved page document.
func NewPage(name string) *Node {
	n := newNode(KindPage)
	n.Name = name
	return n
}

// NewElement creates an unsaved element with the given tag.
func NewElement(tag string) *Node {
	n := newNode(KindElement)
	n.Tag = tag
	return n
}

// NewText creates an unsaved text node.
func NewText(content, contentType string) *Node {
	n := newNode(KindText)
	n.SetContent(content)
	if contentType != "" {
		n.SetContentType(contentType)
	}
	return n
}

// NewComment creates an unsaved comment node.
func NewComment(content string) *Node {
	n := newNode(KindComment)
	n.SetContent(content)
	return n
}

// NewTemplate creates an unsaved template node holding markup as content.
func NewTemplate(name, content string) *Node {
	n := newNode(KindTemplate)
	n.Name = name
	n.SetContent(content)
	n.SetContentType(ContentTypeHTML)
	return n
}

// NewComponent creates an unsaved component container.
func NewComponent(name string) *Node {
	n := newNode(KindComponent)
	n.Name = name
	return n
}

// NewLinkable creates an unsaved file or image node.
func NewLinkable(kind Kind, name, path string) *Node {
	n := newNode(kind)
	n.Name = name
	n.Path = path
	return n
}

// New creates an unsaved node of an arbitrary kind.
func New(kind Kind) *Node {
	return newNode(kind)
}

// DocumentOf returns the id of the document that owns n. Documents own themselves.
func (n *Node) DocumentOf() string {
	if n.Kind.IsDocument() {
		return n.ID
	}
	return n.DocumentID
}

// Content returns the content payload of text-like nodes.
func (n *Node) Content() string { return n.Props.String(PropContent) }

// SetContent replaces the content payload.
func (n *Node) SetContent(s string) { n.Props.Set(PropContent, s) }

// ContentType returns the MIME type of the content payload.
func (n *Node) ContentType() string { return n.Props.String(PropContentType) }

// SetContentType replaces the MIME type of the content payload.
func (n *Node) SetContentType(s string) { n.Props.Set(PropContentType, s) }

// HTMLAttr returns the value of an HTML attribute stored on an element.
func (n *Node) HTMLAttr(name string) (string, bool) {
	v, ok := n.Props.Get(HTMLKey(name))
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, true
}

// SetHTMLAttr stores an HTML attribute on the element.
func (n *Node) SetHTMLAttr(name, value string) {
	n.Props.Set(HTMLKey(name), value)
}

// Copy returns a deep copy of n with the same id.
func (n *Node) Copy() *Node {
	if n == nil {
		return nil
	}
	c := *n
	c.Props = n.Props.Clone()
	if n.Grants != nil {
		c.Grants = make([]Grant, len(n.Grants))
		for i, g := range n.Grants {
			c.Grants[i] = Grant{
				Principal:   g.Principal,
				Permissions: append([]Permission(nil), g.Permissions...),
			}
		}
	}
	return &c
}

// String identifies the node in log output.
func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}
	switch {
	case n.Tag != "":
		return string(n.Kind) + "<" + n.Tag + ">(" + n.ID + ")"
	case n.Name != "":
		return string(n.Kind) + "[" + n.Name + "](" + n.ID + ")"
	}
	return string(n.Kind) + "(" + n.ID + ")"
}
