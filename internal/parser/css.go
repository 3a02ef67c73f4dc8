package parser

import (
	"bytes"
	"fmt"
	"io"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

// StylesheetRefs returns the url() and @import targets of a stylesheet in
// source order. The values are raw; callers resolve them relative to the
// stylesheet.
func StylesheetRefs(r io.Reader) ([]string, error) {
	l := css.NewLexer(parse.NewInput(r))

	var refs []string
	inImport := false
	for {
		tt, data := l.Next()
		switch tt {
		case css.ErrorToken:
			if l.Err() == io.EOF {
				return refs, nil
			}
			return refs, fmt.Errorf("scan stylesheet: %w", l.Err())
		case css.URLToken:
			if u := urlTokenValue(data); u != "" {
				refs = append(refs, u)
			}
		case css.FunctionToken:
			// url( "a.png" ) lexes as a function followed by a string.
			if bytes.EqualFold(data, []byte("url(")) {
				if s, ok := nextString(l); ok && s != "" {
					refs = append(refs, s)
				}
			}
		case css.AtKeywordToken:
			inImport = bytes.EqualFold(data, []byte("@import"))
		case css.StringToken:
			if inImport {
				if s := unquote(data); s != "" {
					refs = append(refs, s)
				}
				inImport = false
			}
		case css.SemicolonToken, css.LeftBraceToken:
			inImport = false
		}
	}
}

func nextString(l *css.Lexer) (string, bool) {
	for {
		tt, data := l.Next()
		switch tt {
		case css.WhitespaceToken:
			continue
		case css.StringToken:
			return unquote(data), true
		default:
			return "", false
		}
	}
}

// urlTokenValue unwraps url(...) with or without quotes.
func urlTokenValue(data []byte) string {
	if len(data) < 5 {
		return ""
	}
	inner := bytes.TrimSpace(data[4 : len(data)-1])
	return unquote(inner)
}

func unquote(b []byte) string {
	b = bytes.TrimSpace(b)
	if len(b) >= 2 && (b[0] == '"' || b[0] == '\'') && b[len(b)-1] == b[0] {
		b = b[1 : len(b)-1]
	}
	return string(b)
}
