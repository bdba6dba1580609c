package doctree

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Well-known property keys.
const (
	PropContent             = "content"
	PropContentType         = "contentType"
	PropShowConditions      = "showConditions"
	PropHideConditions      = "hideConditions"
	PropHasExpressions      = "hasExpressions"
	PropExpressionCount     = "expressionCount"
	PropExpressionPositions = "expressionPositions"
	PropOriginalSrc         = "originalSrc"
	PropOriginalURL         = "originalUrl"
	PropSize                = "size"
	PropSHA256              = "sha256"
	PropStoragePath         = "storagePath"
	PropExtractedContent    = "extractedContent"
)

// Content types the importer assigns.
const (
	ContentTypeHTML       = "text/html"
	ContentTypePlain      = "text/plain"
	ContentTypeCSS        = "text/css"
	ContentTypeJavaScript = "text/javascript"
	ContentTypeXML        = "text/xml"
)

// HTMLPrefix marks properties that belong to the HTML attribute view.
const HTMLPrefix = "_html_"

// HTMLKey returns the property key that stores HTML attribute name.
func HTMLKey(name string) string { return HTMLPrefix + name }

// IsHTMLKey reports whether key belongs to the HTML attribute view.
func IsHTMLKey(key string) bool { return strings.HasPrefix(key, HTMLPrefix) }

// IsDataKey reports whether key is a custom data-* property.
func IsDataKey(key string) bool { return strings.HasPrefix(key, "data-") }

// Properties is an insertion-ordered property map.
type Properties struct {
	keys []string
	vals map[string]any
}

// Set stores v under key, keeping the key's original position when it exists.
func (p *Properties) Set(key string, v any) {
	if p.vals == nil {
		p.vals = make(map[string]any)
	}
	if _, ok := p.vals[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.vals[key] = v
}

// Get returns the value stored under key.
func (p *Properties) Get(key string) (any, bool) {
	v, ok := p.vals[key]
	return v, ok
}

// Has reports whether key is present.
func (p *Properties) Has(key string) bool {
	_, ok := p.vals[key]
	return ok
}

// String returns the value under key formatted as a string, or "" when absent.
func (p *Properties) String(key string) string {
	v, ok := p.vals[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Bool returns the boolean under key. Non-bool values are false.
func (p *Properties) Bool(key string) bool {
	b, _ := p.vals[key].(bool)
	return b
}

// Delete removes key.
func (p *Properties) Delete(key string) {
	if _, ok := p.vals[key]; !ok {
		return
	}
	delete(p.vals, key)
	for i, k := range p.keys {
		if k == key {
			p.keys = append(p.keys[:i], p.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (p *Properties) Keys() []string {
	return append([]string(nil), p.keys...)
}

// Len returns the number of properties.
func (p *Properties) Len() int { return len(p.keys) }

// Range calls fn for every property in order until fn returns false.
func (p *Properties) Range(fn func(key string, v any) bool) {
	for _, k := range p.keys {
		if !fn(k, p.vals[k]) {
			return
		}
	}
}

// Clone returns an independent copy.
func (p Properties) Clone() Properties {
	c := Properties{}
	for _, k := range p.keys {
		c.Set(k, p.vals[k])
	}
	return c
}

// Map returns the properties as a plain map.
func (p *Properties) Map() map[string]any {
	m := make(map[string]any, len(p.keys))
	for _, k := range p.keys {
		m[k] = p.vals[k]
	}
	return m
}

type propEntry struct {
	Key   string `json:"k"`
	Value any    `json:"v"`
}

// MarshalJSON encodes the properties as an ordered list of key/value pairs.
func (p Properties) MarshalJSON() ([]byte, error) {
	entries := make([]propEntry, 0, len(p.keys))
	for _, k := range p.keys {
		entries = append(entries, propEntry{Key: k, Value: p.vals[k]})
	}
	return json.Marshal(entries)
}

// UnmarshalJSON decodes the ordered key/value list written by MarshalJSON.
func (p *Properties) UnmarshalJSON(data []byte) error {
	var entries []propEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("decode properties: %w", err)
	}
	*p = Properties{}
	for _, e := range entries {
		p.Set(e.Key, e.Value)
	}
	return nil
}
