// Package mediatype guesses media types from file names.
package mediatype

import (
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"
)

// ErrNotFound is returned when no media type is known for a path.
var ErrNotFound = errors.New("media type not found")

// Types the platform table often lacks or reports inconsistently.
var fallback = map[string]string{
	".html":  "text/html",
	".htm":   "text/html",
	".xhtml": "application/xhtml+xml",
	".css":   "text/css",
	".js":    "application/javascript",
	".svg":   "image/svg+xml",
	".png":   "image/png",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".gif":   "image/gif",
	".webp":  "image/webp",
	".ncx":   "application/x-dtbncx+xml",
	".eot":   "application/vnd.ms-fontobject",
	".ttf":   "application/octet-stream",
	".otf":   "application/octet-stream",
	".woff":  "application/font-woff",
	".woff2": "font/woff2",
	".mp3":   "audio/mpeg",
	".mp4":   "video/mp4",
	".json":  "application/json",
}

// Resolve returns the media type for p, without parameters.
func Resolve(p string) (string, error) {
	ext := strings.ToLower(path.Ext(p))
	if t, ok := fallback[ext]; ok {
		return t, nil
	}
	if ext != "" {
		if t := mime.TypeByExtension(ext); t != "" {
			if mt, _, err := mime.ParseMediaType(t); err == nil {
				return mt, nil
			}
			return t, nil
		}
	}
	return "", fmt.Errorf("%s: %w", p, ErrNotFound)
}
