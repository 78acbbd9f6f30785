package ingest

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	domain "github.com/example/file-ingestion/domain/file"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/zeebo/errs"
)

// errExtractLimit is returned when an archive inflates past the configured limit.
var errExtractLimit = errors.New("archive exceeds extraction limit")

// Expander inflates zip uploads and hands each member to the regular store path.
// Only one level is expanded; archives inside an archive are stored as plain members.
type Expander struct {
	scratchDir string
	maxBytes   int64
	logger     types.Logger
}

// NewExpander creates an expander using scratchDir for temporary files.
// maxBytes caps the total inflated size of one archive; zero means no cap.
func NewExpander(scratchDir string, maxBytes int64, logger types.Logger) *Expander {
	return &Expander{scratchDir: scratchDir, maxBytes: maxBytes, logger: logger}
}

// Expand buffers archive, inflates it and calls store for every member.
// A buffering or inflation failure yields a single FileError for the archive;
// a store failure yields a FileError for that member only.
// Scratch files are removed on every return path.
func (e *Expander) Expand(ctx context.Context, archive domain.Item, store func(context.Context, domain.Item) error) []domain.FileError {
	archiveName := archive.Name
	fail := func(err error) []domain.FileError {
		return []domain.FileError{{Item: archiveName, Message: domain.MsgExtractErr + err.Error()}}
	}

	if err := os.MkdirAll(e.scratchDir, 0o750); err != nil {
		return fail(err)
	}

	buffer, err := os.CreateTemp(e.scratchDir, "upload-*.zip")
	if err != nil {
		return fail(err)
	}
	defer func() {
		if err := errs.Combine(buffer.Close(), os.Remove(buffer.Name())); err != nil {
			e.logger.Warn("Failed to remove archive buffer", "path", buffer.Name(), "error", err)
		}
	}()

	size, err := io.Copy(buffer, archive.Content)
	if err != nil {
		return fail(err)
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	// the reader stays valid alongside ErrInsecurePath; memberPath rejects those entries
	reader, err := zip.NewReader(buffer, size)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return fail(err)
	}

	extractDir, err := os.MkdirTemp(e.scratchDir, "extract-*")
	if err != nil {
		return fail(err)
	}
	defer func() {
		if err := os.RemoveAll(extractDir); err != nil {
			e.logger.Warn("Failed to remove extraction dir", "path", extractDir, "error", err)
		}
	}()

	var fileErrors []domain.FileError
	var inflated int64
	for _, member := range reader.File {
		if member.FileInfo().IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		target, ok := memberPath(extractDir, member.Name)
		if !ok {
			fileErrors = append(fileErrors, domain.FileError{Item: member.Name, Message: "unsafe path in archive"})
			continue
		}

		n, err := e.inflate(member, target, inflated)
		if err != nil {
			return fail(err)
		}
		inflated += n
	}

	walkErr := filepath.WalkDir(extractDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, _ := filepath.Rel(extractDir, p)
		if fe := e.storeMember(ctx, p, filepath.ToSlash(rel), store); fe != nil {
			fileErrors = append(fileErrors, *fe)
		}
		return nil
	})
	if walkErr != nil {
		return append(fileErrors, fail(walkErr)...)
	}

	e.logger.Debug("Archive expanded", "archive", archiveName, "bytes", inflated)
	return fileErrors
}

// inflate writes member to target and returns the number of bytes written.
func (e *Expander) inflate(member *zip.File, target string, already int64) (n int64, err error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return 0, err
	}

	src, err := member.Open()
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", member.Name, err)
	}
	defer func() { err = errs.Combine(err, src.Close()) }()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o640)
	if err != nil {
		return 0, err
	}
	defer func() { err = errs.Combine(err, dst.Close()) }()

	var r io.Reader = src
	if e.maxBytes > 0 {
		r = io.LimitReader(src, e.maxBytes-already+1)
	}
	n, err = io.Copy(dst, r)
	if err != nil {
		return n, fmt.Errorf("inflate %s: %w", member.Name, err)
	}
	if e.maxBytes > 0 && already+n > e.maxBytes {
		return n, errExtractLimit
	}
	return n, nil
}

// storeMember opens an extracted file and passes it to store.
func (e *Expander) storeMember(ctx context.Context, p, name string, store func(context.Context, domain.Item) error) *domain.FileError {
	f, err := os.Open(p)
	if err != nil {
		return &domain.FileError{Item: name, Message: err.Error()}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return &domain.FileError{Item: name, Message: err.Error()}
	}

	item := domain.Item{
		Name:        name,
		Size:        info.Size(),
		ContentType: domain.DefaultContentType,
		Content:     f,
	}
	if fe := Validate(item); fe != nil {
		return fe
	}
	if err := store(ctx, item); err != nil {
		return &domain.FileError{Item: name, Message: err.Error()}
	}
	return nil
}

// memberPath maps a zip entry name inside dir, rejecting names that would leave it.
func memberPath(dir, name string) (string, bool) {
	cleaned := filepath.Clean(filepath.FromSlash(strings.ReplaceAll(name, `\`, "/")))
	if filepath.IsAbs(cleaned) || cleaned == "." || escapes(cleaned) {
		return "", false
	}
	target := filepath.Join(dir, cleaned)
	rel, err := filepath.Rel(dir, target)
	if err != nil || escapes(rel) {
		return "", false
	}
	return target, true
}

func escapes(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
