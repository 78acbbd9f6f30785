package file

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"
	"time"
)

// DefaultContentType is used when no content type is known for a blob.
const DefaultContentType = "application/octet-stream"

// Record describes one stored blob.
type Record struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	Name       string    `gorm:"size:255;not null;index" json:"name"`
	Type       string    `gorm:"size:50" json:"type"`
	StorageKey string    `gorm:"size:512;not null;uniqueIndex" json:"storage_key"`
	Size       int64     `gorm:"not null" json:"size"`
	UploadedAt time.Time `gorm:"not null;index" json:"uploaded_at"`
}

// TableName returns the table name for the Record model.
func (Record) TableName() string {
	return "file_records"
}

// Item is a single uploaded file waiting to be stored.
type Item struct {
	Name        string
	Size        int64
	ContentType string
	Content     io.Reader
}

// NewItem builds an Item backed by an in-memory payload.
func NewItem(name, contentType string, data []byte) Item {
	return Item{
		Name:        name,
		Size:        int64(len(data)),
		ContentType: contentType,
		Content:     bytes.NewReader(data),
	}
}

// Download is a fetched blob together with its record.
type Download struct {
	Record      Record `json:"record"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// TypeOf derives the stored file type from a display name.
func TypeOf(name string) string {
	return filepath.Ext(name)
}

// contentTypeByExt maps file extensions to MIME types.
var contentTypeByExt = map[string]string{
	".txt":  "text/plain",
	".csv":  "text/csv",
	".html": "text/html",
	".htm":  "text/html",
	".css":  "text/css",
	".js":   "application/javascript",
	".json": "application/json",
	".xml":  "application/xml",
	".pdf":  "application/pdf",
	".zip":  "application/zip",
	".tar":  "application/x-tar",
	".gz":   "application/gzip",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".webp": "image/webp",
	".mp3":  "audio/mpeg",
	".mp4":  "video/mp4",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// ContentTypeFor guesses a MIME type from the extension of name.
func ContentTypeFor(name string) string {
	if ct, ok := contentTypeByExt[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return DefaultContentType
}
