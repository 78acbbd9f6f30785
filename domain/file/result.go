package file

// Outcome classifies a batch result.
type Outcome string

// Batch outcomes.
const (
	AllSucceeded       Outcome = "all_succeeded"
	PartialSuccess     Outcome = "partial_success"
	AllFailed          Outcome = "all_failed"
	PreconditionFailed Outcome = "precondition_failed"
)

// Operation names a multi-item pipeline for message selection.
type Operation string

// Batch operations.
const (
	OpUpload   Operation = "upload"
	OpDelete   Operation = "delete"
	OpDownload Operation = "download"
)

var messages = map[Operation]map[Outcome]string{
	OpUpload: {
		AllSucceeded:       "All files uploaded successfully.",
		PartialSuccess:     "Partial success in file upload.",
		AllFailed:          "All files failed to upload.",
		PreconditionFailed: "No files were provided.",
	},
	OpDelete: {
		AllSucceeded:       "All files deleted successfully.",
		PartialSuccess:     "Partial success in file deletion.",
		AllFailed:          "All files failed to delete.",
		PreconditionFailed: "No metadata found for the given ids.",
	},
	OpDownload: {
		AllSucceeded:       "All files downloaded successfully.",
		PartialSuccess:     "Partial success in file download.",
		AllFailed:          "All files failed to download.",
		PreconditionFailed: "No files matched the filter.",
	},
}

// FileError is the failure of one item inside a batch.
type FileError struct {
	Item    string `json:"item"`
	Message string `json:"message"`
}

// BatchResult is the aggregate outcome of a multi-item operation.
type BatchResult struct {
	Success bool        `json:"success"`
	Outcome Outcome     `json:"outcome"`
	Message string      `json:"message"`
	Errors  []FileError `json:"errors"`
}

// Summarize builds the BatchResult for op from the number of succeeded items and the collected errors.
// Success holds exactly when errors is empty, so a batch where nothing was attempted carries one error.
func Summarize(op Operation, succeeded int, errors []FileError) BatchResult {
	var outcome Outcome
	switch {
	case len(errors) == 0 && succeeded == 0:
		return Precondition(op, nil)
	case len(errors) == 0:
		outcome = AllSucceeded
	case succeeded == 0:
		outcome = AllFailed
	default:
		outcome = PartialSuccess
	}
	if errors == nil {
		errors = []FileError{}
	}
	return BatchResult{
		Success: outcome == AllSucceeded,
		Outcome: outcome,
		Message: messages[op][outcome],
		Errors:  errors,
	}
}

// Precondition builds a failed BatchResult for op when nothing could be attempted.
func Precondition(op Operation, errors []FileError) BatchResult {
	msg := messages[op][PreconditionFailed]
	if len(errors) == 0 {
		errors = []FileError{{Message: msg}}
	}
	return BatchResult{
		Success: false,
		Outcome: PreconditionFailed,
		Message: msg,
		Errors:  errors,
	}
}

// UploadResult is the outcome of an upload batch.
type UploadResult struct {
	BatchResult
	Stored []Record `json:"stored"`
}

// DeleteResult is the outcome of a delete batch.
type DeleteResult struct {
	BatchResult
	Deleted []uint `json:"successfully_deleted"`
}

// DownloadBatch is the outcome of a filtered download.
type DownloadBatch struct {
	BatchResult
	Files []Download `json:"files"`
}
