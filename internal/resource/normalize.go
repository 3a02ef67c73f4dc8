package resource

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Clean converts an OS path into the canonical registry form:
// slash-separated, cleaned, NFC-normalized, case preserved.
func Clean(p string) string {
	p = filepath.ToSlash(p)
	p = strings.TrimPrefix(path.Clean(p), "./")
	return norm.NFC.String(p)
}

// Normalize resolves a reference found in a document located in baseDir.
// It returns false for references that do not name a packageable local file:
// empty or fragment-only references, remote URLs, and paths that escape the
// source root.
func Normalize(baseDir, ref string) (string, bool) {
	ref = strings.TrimSpace(strings.ReplaceAll(ref, "\n", ""))
	if ref == "" || strings.HasPrefix(ref, "#") || strings.HasPrefix(ref, "//") {
		return "", false
	}

	p := stripSuffix(ref)
	if u, err := url.Parse(ref); err == nil {
		if u.Scheme != "" {
			return "", false
		}
		p = u.Path
	}
	if p == "" {
		return "", false
	}

	if strings.HasPrefix(p, "/") {
		p = strings.TrimLeft(p, "/")
	} else {
		p = path.Join(baseDir, p)
	}
	p = Clean(p)
	if p == "." || p == ".." || strings.HasPrefix(p, "../") {
		return "", false
	}
	return p, true
}

// Href escapes a registry path for use in an href attribute. A colon in
// the first segment gets a "./" prefix so it is not read as a scheme.
func Href(p string) string {
	return (&url.URL{Path: p}).String()
}

// HrefFragment is Href followed by "#" and the escaped fragment.
func HrefFragment(p, fragment string) string {
	return (&url.URL{Path: p, Fragment: fragment}).String()
}

// Dir returns the directory of a registry path, "" for top-level files.
func Dir(p string) string {
	d := path.Dir(p)
	if d == "." {
		return ""
	}
	return d
}
