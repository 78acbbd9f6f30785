package file

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFilter(t *testing.T) {
	tests := []struct {
		name  string
		field string
		query string
		want  Filter
	}{
		{"filename", "FileName", "report", NameContains("report")},
		{"filepath", "filepath", "uploads/", KeyContains("uploads/")},
		{"filetype", "filetype", ".pdf", TypeContains(".pdf")},
		{"filesize", "filesize", "1024", SizeAtMost(1024)},
		{"unknown field falls back to all", "owner", "bob", NoFilter()},
		{"empty field falls back to all", "", "", NoFilter()},
		{"non-numeric size falls back to all", "filesize", "big", NoFilter()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFilter(tt.field, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFilter_NegativeSize(t *testing.T) {
	_, err := ParseFilter("filesize", "-1")
	require.Error(t, err)
	assert.True(t, ValidationError.Has(err))
}

func TestSummarize(t *testing.T) {
	errs := []FileError{{Item: "b.txt", Message: MsgEmptyFile}}

	t.Run("all succeeded", func(t *testing.T) {
		r := Summarize(OpUpload, 3, nil)
		assert.True(t, r.Success)
		assert.Equal(t, AllSucceeded, r.Outcome)
		assert.Equal(t, "All files uploaded successfully.", r.Message)
		assert.NotNil(t, r.Errors)
		assert.Empty(t, r.Errors)
	})

	t.Run("partial", func(t *testing.T) {
		r := Summarize(OpUpload, 2, errs)
		assert.False(t, r.Success)
		assert.Equal(t, PartialSuccess, r.Outcome)
		assert.Equal(t, "Partial success in file upload.", r.Message)
	})

	t.Run("all failed", func(t *testing.T) {
		r := Summarize(OpDelete, 0, errs)
		assert.False(t, r.Success)
		assert.Equal(t, AllFailed, r.Outcome)
	})

	t.Run("nothing attempted", func(t *testing.T) {
		r := Summarize(OpUpload, 0, nil)
		assert.False(t, r.Success)
		assert.Equal(t, PreconditionFailed, r.Outcome)
		require.Len(t, r.Errors, 1)
		assert.Equal(t, "No files were provided.", r.Errors[0].Message)
	})
}

func TestTypeOfAndContentType(t *testing.T) {
	assert.Equal(t, ".txt", TypeOf("notes.txt"))
	assert.Equal(t, ".gz", TypeOf("backup.tar.gz"))
	assert.Equal(t, "", TypeOf("README"))

	assert.Equal(t, "application/pdf", ContentTypeFor("Report.PDF"))
	assert.Equal(t, DefaultContentType, ContentTypeFor("blob.unknown"))
}
