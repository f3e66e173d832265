// Package board - images.go
//
// Image file handling for the upload port and the static /images/<name>
// route: filename validation, content-type mapping, and disk IO rooted at a
// single images directory.
package board

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidImageName rejects filenames that could escape the images dir.
var ErrInvalidImageName = errors.New("invalid image name")

var contentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
}

// ValidImageName reports whether name is a bare filename. Path separators,
// parent references and empty names are rejected.
func ValidImageName(name string) bool {
	if name == "" {
		return false
	}
	if strings.ContainsAny(name, "/\\") {
		return false
	}
	if strings.Contains(name, "..") {
		return false
	}
	return true
}

// ContentTypeByExt maps a filename to its Content-Type. Unknown extensions
// get application/octet-stream.
func ContentTypeByExt(name string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// KnownImageExt reports whether the extension is one we serve as an image.
func KnownImageExt(ext string) bool {
	_, ok := contentTypes[strings.ToLower(ext)]
	return ok
}

// ReadImage loads a stored image by validated filename.
func ReadImage(dir, name string) ([]byte, error) {
	if !ValidImageName(name) {
		return nil, ErrInvalidImageName
	}
	return os.ReadFile(filepath.Join(dir, name))
}

// WriteImage stores image bytes under the given filename, creating the
// directory on first use.
func WriteImage(dir, name string, data []byte) error {
	if !ValidImageName(name) {
		return ErrInvalidImageName
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, name), data, 0o644)
}
