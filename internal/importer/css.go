package importer

import (
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

// cssReferences returns the addresses referenced by url(...) and @import
// in a stylesheet, in order of appearance.
func cssReferences(src string) []string {
	var refs []string
	add := func(ref string) {
		if ref = strings.TrimSpace(ref); ref != "" {
			refs = append(refs, ref)
		}
	}

	l := css.NewLexer(parse.NewInputString(src))
	var inImport, inURLFunc bool
	for {
		tt, data := l.Next()
		switch tt {
		case css.ErrorToken:
			return refs
		case css.URLToken:
			add(unwrapURL(string(data)))
		case css.FunctionToken:
			inURLFunc = strings.EqualFold(string(data), "url(")
		case css.AtKeywordToken:
			inImport = strings.EqualFold(string(data), "@import")
		case css.StringToken:
			if inImport || inURLFunc {
				add(unquote(string(data)))
			}
			inURLFunc = false
		case css.SemicolonToken, css.RightParenthesisToken:
			inImport, inURLFunc = false, false
		}
	}
}

// unwrapURL turns `url( "a.png" )` into `a.png`.
func unwrapURL(tok string) string {
	if len(tok) >= 4 && strings.EqualFold(tok[:4], "url(") {
		tok = tok[4:]
	}
	tok = strings.TrimSuffix(tok, ")")
	return unquote(strings.TrimSpace(tok))
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}
