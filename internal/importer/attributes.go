package importer

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/dgallion1/pagetree/internal/doctree"
)

// MetaPrefix marks attributes that carry node properties rather than HTML.
const MetaPrefix = "data-structr-meta-"

// ErrDeferred is returned by a property converter whose value refers to
// nodes that may not exist yet.
var ErrDeferred = errors.New("conversion deferred")

var tagCleaner = regexp.MustCompile(`[^\w:.\-#]+`)

// cleanTag lower-cases name and strips every character that cannot appear
// in a stored tag.
func cleanTag(name string) string {
	return tagCleaner.ReplaceAllString(strings.ToLower(name), "")
}

// PropertyKey describes one property that may be set through a
// data-structr-meta-* attribute.
type PropertyKey struct {
	Name string
	// Convert turns the attribute text into the stored value. Nil stores
	// the text unchanged.
	Convert func(raw string) (any, error)
	// Deferred values refer to other nodes and are converted by
	// ResolveDeferred once the subtree exists.
	Deferred bool
}

// PropertyKeys is the set of properties known to the importer.
type PropertyKeys map[string]PropertyKey

// Lookup returns the key called name.
func (k PropertyKeys) Lookup(name string) (PropertyKey, bool) {
	key, ok := k[name]
	return key, ok
}

// DefaultPropertyKeys returns the properties written by the exporter.
func DefaultPropertyKeys() PropertyKeys {
	keys := PropertyKeys{}
	for _, name := range []string{
		"name",
		doctree.PropShowConditions,
		doctree.PropHideConditions,
		"showForLocales",
		"hideForLocales",
		"dataKey",
		"restQuery",
		"cypherQuery",
		"xpathQuery",
		"functionQuery",
		"sharedComponentConfiguration",
		"eventMapping",
	} {
		keys[name] = PropertyKey{Name: name}
	}
	for _, name := range []string{"hideOnIndex", "hideOnDetail", "renderDetails", "hideConditionsBoolean"} {
		keys[name] = PropertyKey{Name: name, Convert: convertBool}
	}
	for _, name := range []string{"pageSize", "position"} {
		keys[name] = PropertyKey{Name: name, Convert: convertInt}
	}
	keys["reloadTarget"] = PropertyKey{Name: "reloadTarget", Deferred: true}
	return keys
}

func convertBool(raw string) (any, error) { return strconv.ParseBool(strings.TrimSpace(raw)) }

func convertInt(raw string) (any, error) { return strconv.Atoi(strings.TrimSpace(raw)) }

// camelCase turns "show-conditions" into "showConditions".
func camelCase(s string) string {
	parts := strings.Split(s, "-")
	var b strings.Builder
	for i, p := range parts {
		if p == "" {
			continue
		}
		if i > 0 && b.Len() > 0 {
			b.WriteString(strings.ToUpper(p[:1]))
			b.WriteString(p[1:])
			continue
		}
		b.WriteString(p)
	}
	return b.String()
}

// mapAttributes copies the attributes of markup onto n.
func (r *run) mapAttributes(ctx context.Context, markup *html.Node, n *doctree.Node, tag string) {
	for _, a := range markup.Attr {
		key := a.Key
		if a.Namespace != "" {
			key = a.Namespace + ":" + key
		}
		switch {
		case key == "id", key == "class":
			n.SetHTMLAttr(key, a.Val)
		case strings.HasPrefix(key, MetaPrefix):
			r.metaAttribute(n, camelCase(strings.TrimPrefix(key, MetaPrefix)), a.Val)
		case doctree.IsDataKey(key):
			n.Props.Set(key, a.Val)
		default:
			if r.linkAttribute(ctx, n, tag, key, a.Val) {
				continue
			}
			n.SetHTMLAttr(key, a.Val)
		}
	}
}

// metaAttribute stores a converted property. Unknown keys are dropped.
func (r *run) metaAttribute(n *doctree.Node, name, raw string) {
	key, ok := r.imp.keys.Lookup(name)
	if !ok {
		r.log.Debug("unknown property key", "key", name, "node", n.String())
		return
	}
	if key.Deferred {
		r.deferProperty(n, key.Name, raw)
		return
	}
	if key.Name == "name" {
		n.Name = raw
		return
	}
	if key.Convert == nil {
		n.Props.Set(key.Name, raw)
		return
	}
	v, err := key.Convert(raw)
	switch {
	case errors.Is(err, ErrDeferred):
		r.deferProperty(n, key.Name, raw)
	case err != nil:
		r.warn("property not converted", "key", key.Name, "value", raw, "error", err)
	default:
		n.Props.Set(key.Name, v)
	}
}

func (r *run) deferProperty(n *doctree.Node, key, raw string) {
	r.state.deferred = append(r.state.deferred, DeferredProperty{NodeID: n.ID, Key: key, Raw: raw})
}
