package file

import (
	"errors"

	"github.com/zeebo/errs"
)

// Error classes for the ingestion pipeline.
var (
	// ValidationError marks rejected input such as an empty upload or a missing field.
	ValidationError = errs.Class("validation")

	// StorageError marks a blob store failure other than absence.
	StorageError = errs.Class("storage")

	// MetadataError marks a metadata store failure other than absence.
	MetadataError = errs.Class("metadata")
)

// ErrNotFound is returned when a record or its blob does not exist.
var ErrNotFound = errors.New("file not found")

// Per-item messages attached to FileError entries.
const (
	MsgEmptyFile       = "File is empty"
	MsgNameRequired    = "File name is required"
	MsgNotFoundOrBad   = "not found or invalid"
	MsgBlobNotFound    = "File not found in storage."
	MsgDeleteBlobErr   = "Error deleting file: "
	MsgDeleteRecordErr = "Error deleting metadata: "
	MsgExtractErr      = "Failed to extract ZIP file: "
)
