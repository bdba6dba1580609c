package importer

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/gabriel-vasile/mimetype"

	"github.com/dgallion1/pagetree/internal/doctree"
	"github.com/dgallion1/pagetree/internal/fetch"
	"github.com/dgallion1/pagetree/internal/parser"
	"github.com/dgallion1/pagetree/internal/store"
)

// LinkExpression replaces a downloaded address in the stored attribute.
const LinkExpression = "${link.path}"

// linkAttributes lists the attributes that point at downloadable resources.
var linkAttributes = map[string]map[string]bool{
	"img":    {"src": true},
	"script": {"src": true},
	"link":   {"href": true},
	"a":      {"href": true},
	"source": {"src": true},
	"video":  {"src": true, "poster": true},
	"audio":  {"src": true},
	"track":  {"src": true},
	"embed":  {"src": true},
}

// Anchors pointing at these are links to pages, not resources.
var pageExtensions = map[string]bool{
	"":      true,
	".html": true,
	".htm":  true,
	".php":  true,
	".jsp":  true,
	".asp":  true,
	".aspx": true,
}

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".svg":  true,
	".webp": true,
	".ico":  true,
	".bmp":  true,
	".avif": true,
}

// Detection cannot tell text formats apart, so these win over sniffing.
var extensionTypes = map[string]string{
	".css":  doctree.ContentTypeCSS,
	".js":   doctree.ContentTypeJavaScript,
	".mjs":  doctree.ContentTypeJavaScript,
	".json": "application/json",
	".svg":  "image/svg+xml",
	".html": doctree.ContentTypeHTML,
	".htm":  doctree.ContentTypeHTML,
	".md":   "text/markdown",
	".csv":  "text/csv",
}

// linkAttribute downloads the resource an attribute points at and stores a
// link expression instead of the address. It reports whether it did.
func (r *run) linkAttribute(ctx context.Context, n *doctree.Node, tag, key, val string) bool {
	if r.imp.deployment || !linkAttributes[tag][key] || !downloadable(tag, val) {
		return false
	}
	linkable := r.downloadFile(ctx, val, r.base)
	if linkable == nil {
		return false
	}
	n.LinkableID = linkable.ID
	n.SetHTMLAttr(key, LinkExpression)
	return true
}

// downloadable reports whether address is a local resource reference.
func downloadable(tag, address string) bool {
	a := strings.TrimSpace(address)
	if a == "" || strings.HasPrefix(a, "#") || strings.HasPrefix(a, "//") ||
		strings.Contains(a, "${") || strings.HasPrefix(a, "/structr/") {
		return false
	}
	lower := strings.ToLower(a)
	for _, scheme := range []string{"data:", "mailto:", "javascript:", "tel:"} {
		if strings.HasPrefix(lower, scheme) {
			return false
		}
	}
	u, err := url.Parse(a)
	if err != nil || u.IsAbs() || u.Host != "" {
		return false
	}
	if tag == "a" && pageExtensions[strings.ToLower(path.Ext(u.Path))] {
		return false
	}
	return true
}

// downloadFile returns the stored resource for address, downloading it on
// first use within the run. Failures are logged and yield nil.
func (r *run) downloadFile(ctx context.Context, address string, base *url.URL) *doctree.Node {
	if r.imp.fetcher == nil || r.imp.deployment {
		return nil
	}
	if !downloadable("", address) {
		return nil
	}
	ref, err := url.Parse(strings.TrimSpace(address))
	if err != nil {
		r.warn("invalid resource address", "address", address, "error", err)
		return nil
	}
	if base == nil {
		r.log.Debug("relative resource without base url", "address", address)
		return nil
	}
	resolved := base.ResolveReference(ref)
	root := r.base
	if root == nil {
		root = base
	}
	key := linkablePath(resolved, root)
	if cached, ok := r.state.linkables[key]; ok {
		r.state.run.IncrCacheHits()
		return cached
	}

	res, err := r.imp.fetcher.Get(ctx, resolved.String())
	if err != nil {
		alt := alternateBase(base).ResolveReference(ref)
		if alt.String() != resolved.String() {
			r.log.Debug("retrying against alternate base", "address", address, "url", alt.String())
			res, err = r.imp.fetcher.Get(ctx, alt.String())
		}
	}
	if err != nil {
		r.warn("resource not downloaded", "address", address, "url", resolved.String(), "error", err)
		r.state.linkables[key] = nil
		return nil
	}

	linkable, err := r.storeLinkable(ctx, key, resolved, res)
	if err != nil {
		r.warn("resource not stored", "address", address, "error", err)
		r.state.linkables[key] = nil
		return nil
	}
	r.state.linkables[key] = linkable

	if linkable.ContentType() == doctree.ContentTypeCSS {
		for _, nested := range cssReferences(string(res.Data)) {
			r.downloadFile(ctx, nested, resolved)
		}
	}
	return linkable
}

// storeLinkable stores res as a file or image node at key, reusing an
// existing node with the same path and checksum.
func (r *run) storeLinkable(ctx context.Context, key string, u *url.URL, res *fetch.Resource) (*doctree.Node, error) {
	tmp, err := os.CreateTemp("", "pagetree-*"+path.Ext(key))
	if err != nil {
		return nil, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	_, err = tmp.Write(res.Data)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	detected, err := mimetype.DetectFile(tmp.Name())
	if err != nil {
		return nil, fmt.Errorf("detect content type: %w", err)
	}

	checksum := fmt.Sprintf("%016x", xxhash.Sum64(res.Data))
	existing, err := r.imp.store.FindNodes(ctx, store.Query{
		Path:     key,
		Checksum: checksum,
		Kinds:    []doctree.Kind{doctree.KindFile, doctree.KindImage},
	})
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		r.state.run.IncrFilesReused()
		r.log.Debug("resource already imported", "path", key, "id", existing[0].ID)
		return existing[0], nil
	}

	ext := strings.ToLower(path.Ext(key))
	ct := contentTypeOf(ext, res.ContentType, detected)
	kind := doctree.KindFile
	if imageExtensions[ext] || strings.HasPrefix(ct, "image/") {
		kind = doctree.KindImage
	}
	n := doctree.NewLinkable(kind, path.Base(key), key)
	n.Checksum = checksum
	n.SetContentType(ct)
	n.Props.Set(doctree.PropSize, len(res.Data))
	n.Props.Set(doctree.PropSHA256, ContentHashHex(res.Data))
	n.Props.Set(doctree.PropOriginalURL, u.String())
	r.applyVisibility(n, nil)

	if kind == doctree.KindFile && parser.IsSupportedExtension(key) {
		text, err := r.extractText(res.Data, key)
		if err != nil {
			r.log.Debug("text extraction failed", "path", key, "error", err)
		} else {
			n.Props.Set(doctree.PropExtractedContent, text)
		}
	}

	var rel string
	if r.imp.files != nil {
		if rel, _, err = r.imp.files.Put(n.ID, bytes.NewReader(res.Data)); err != nil {
			return nil, err
		}
		n.Props.Set(doctree.PropStoragePath, rel)
	}
	if err := r.imp.store.CreateNode(ctx, n); err != nil {
		if rel != "" {
			r.imp.files.Remove(rel)
		}
		return nil, fmt.Errorf("create %s: %w", n, err)
	}
	r.state.run.IncrFilesDownloaded()
	r.state.run.IncrNodesCreated()
	r.log.Info("downloaded resource", "path", key, "kind", kind, "size", len(res.Data))
	return n, nil
}

func (r *run) extractText(data []byte, name string) (string, error) {
	e, err := parser.ForFile(name)
	if err != nil {
		return "", err
	}
	if pdf, ok := e.(*parser.PDFExtractor); ok {
		pdf.FallbackPdftotext = r.imp.pdfFallback
	}
	return e.Extract(bytes.NewReader(data), name)
}

func contentTypeOf(ext, header string, detected *mimetype.MIME) string {
	if ct, ok := extensionTypes[ext]; ok {
		return ct
	}
	if !detected.Is("application/octet-stream") && !detected.Is("text/plain") {
		return mediaType(detected.String())
	}
	if header != "" {
		return mediaType(header)
	}
	return mediaType(detected.String())
}

func mediaType(s string) string {
	t, _, _ := strings.Cut(s, ";")
	return strings.TrimSpace(t)
}

// linkablePath normalizes u to the path a resource is stored under:
// relative to the directory of base when below it.
func linkablePath(u, base *url.URL) string {
	p := path.Clean("/" + u.Path)
	if base == nil || u.Scheme != base.Scheme || u.Host != base.Host {
		return p
	}
	dir := base.Path
	if !strings.HasSuffix(dir, "/") {
		dir = path.Dir(dir)
		if !strings.HasSuffix(dir, "/") {
			dir += "/"
		}
	}
	if strings.HasPrefix(p, dir) {
		return "/" + strings.TrimPrefix(p, dir)
	}
	return p
}

// alternateBase toggles the trailing slash of base.
func alternateBase(base *url.URL) *url.URL {
	alt := *base
	alt.RawPath = ""
	if strings.HasSuffix(alt.Path, "/") {
		alt.Path = strings.TrimSuffix(alt.Path, "/")
	} else {
		alt.Path += "/"
	}
	return &alt
}
