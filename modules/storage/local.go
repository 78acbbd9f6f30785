package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	domain "github.com/example/file-ingestion/domain/file"
)

// Local stores blobs as files under a root directory.
type Local struct {
	root string
}

// Compile-time interface check.
var _ Backend = (*Local)(nil)

// NewLocal creates a Local backend rooted at root, creating the directory if needed.
func NewLocal(root string) (*Local, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, domain.StorageError.New("create storage root %q: %v", root, err)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, domain.StorageError.New("resolve storage root: %v", err)
	}
	return &Local{root: absRoot}, nil
}

// Name returns the backend name.
func (l *Local) Name() string {
	return "local"
}

// KeyStyle returns KeyStyleReadable.
func (l *Local) KeyStyle() KeyStyle {
	return KeyStyleReadable
}

// Root returns the absolute root directory.
func (l *Local) Root() string {
	return l.root
}

// path resolves key to a file under root, refusing keys that escape it.
func (l *Local) path(key string) (string, error) {
	if key == "" {
		return "", domain.StorageError.New("empty key")
	}
	joined := filepath.Join(l.root, filepath.Clean(filepath.FromSlash(key)))
	rel, err := filepath.Rel(l.root, joined)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", domain.StorageError.New("key %q escapes storage root", key)
	}
	return joined, nil
}

// Put writes data to key using a temp file and an atomic rename.
func (l *Local) Put(ctx context.Context, key string, data []byte, _ string) error {
	if err := ctx.Err(); err != nil {
		return domain.StorageError.Wrap(err)
	}
	dest, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return domain.StorageError.New("mkdir %q: %v", filepath.Dir(dest), err)
	}

	f, err := os.CreateTemp(filepath.Dir(dest), ".put-*")
	if err != nil {
		return domain.StorageError.New("open tmp for %q: %v", key, err)
	}
	tmp := f.Name()

	_, werr := f.Write(data)
	cerr := f.Close()
	if werr != nil || cerr != nil {
		os.Remove(tmp) //nolint:errcheck
		return domain.StorageError.New("write %q: %v", key, errors.Join(werr, cerr))
	}

	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp) //nolint:errcheck
		return domain.StorageError.New("rename to %q: %v", key, err)
	}
	return nil
}

// Get reads the blob at key.
func (l *Local) Get(ctx context.Context, key string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.StorageError.Wrap(err)
	}
	p, err := l.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFound(key)
		}
		return nil, domain.StorageError.New("open %q: %v", key, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, domain.StorageError.New("read %q: %v", key, err)
	}
	return &Object{
		Key:         key,
		Data:        data,
		ContentType: domain.ContentTypeFor(key),
	}, nil
}

// Exists reports whether a regular file is stored at key.
func (l *Local) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, domain.StorageError.Wrap(err)
	}
	p, err := l.path(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, domain.StorageError.New("stat %q: %v", key, err)
	}
	return info.Mode().IsRegular(), nil
}

// Delete removes the blob at key.
func (l *Local) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return domain.StorageError.Wrap(err)
	}
	p, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return notFound(key)
		}
		return domain.StorageError.New("remove %q: %v", key, err)
	}
	return nil
}

// Copy duplicates the blob at srcKey to dstKey.
func (l *Local) Copy(ctx context.Context, srcKey, dstKey string) error {
	obj, err := l.Get(ctx, srcKey)
	if err != nil {
		return err
	}
	if err := l.Put(ctx, dstKey, obj.Data, obj.ContentType); err != nil {
		return fmt.Errorf("copy %q to %q: %w", srcKey, dstKey, err)
	}
	return nil
}
