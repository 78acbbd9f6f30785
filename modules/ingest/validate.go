package ingest

import (
	"path"
	"path/filepath"
	"strings"

	domain "github.com/example/file-ingestion/domain/file"
)

// Validate returns the FileError rejecting item, or nil if the item may be stored.
func Validate(item domain.Item) *domain.FileError {
	if displayName(item.Name) == "" {
		return &domain.FileError{Item: item.Name, Message: domain.MsgNameRequired}
	}
	if item.Size <= 0 || item.Content == nil {
		return &domain.FileError{Item: item.Name, Message: domain.MsgEmptyFile}
	}
	return nil
}

// IsArchive reports whether name is a zip archive that should be expanded.
func IsArchive(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".zip")
}

// splitExt splits name into base and extension.
// A leading dot belongs to the base, so ".env" has no extension.
func splitExt(name string) (base, ext string) {
	ext = filepath.Ext(name)
	if ext == name {
		return name, ""
	}
	return strings.TrimSuffix(name, ext), ext
}

// displayName strips any client supplied directories from name.
// It returns "" when nothing usable is left.
func displayName(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), `\`, "/")
	base := path.Base(path.Clean("/" + name))
	if base == "/" || base == "." {
		return ""
	}
	return base
}
