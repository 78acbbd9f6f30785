package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	domain "github.com/example/file-ingestion/domain/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_Backend(t *testing.T) {
	b, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	exerciseBackend(t, b)
}

func TestLocal_RejectsEscapingKeys(t *testing.T) {
	b, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	for _, key := range []string{"../outside.txt", "a/../../outside.txt", "..", ""} {
		err := b.Put(ctx, key, []byte("x"), "text/plain")
		require.Error(t, err, "key %q", key)
		assert.True(t, domain.StorageError.Has(err))
	}
}

func TestLocal_AcceptsDotPrefixedNames(t *testing.T) {
	root := t.TempDir()
	b, err := NewLocal(root)
	require.NoError(t, err)
	ctx := context.Background()

	for _, key := range []string{"..notes.txt", "...txt", ".env"} {
		require.NoError(t, b.Put(ctx, key, []byte("x"), ""), "key %q", key)
		obj, err := b.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, []byte("x"), obj.Data)
		assert.FileExists(t, filepath.Join(root, key))
	}
}

func TestLocal_NoTempFilesLeft(t *testing.T) {
	root := t.TempDir()
	b, err := NewLocal(root)
	require.NoError(t, err)

	require.NoError(t, b.Put(context.Background(), "a.txt", []byte("data"), ""))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.txt", entries[0].Name())
}

func TestLocal_ContentTypeFromExtension(t *testing.T) {
	b, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, "doc.pdf", []byte("%PDF"), "application/pdf"))
	obj, err := b.Get(ctx, "doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", obj.ContentType)
}

func TestLocal_ExistsIgnoresDirectories(t *testing.T) {
	root := t.TempDir()
	b, err := NewLocal(root)
	require.NoError(t, err)
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o750))

	ok, err := b.Exists(context.Background(), "sub")
	require.NoError(t, err)
	assert.False(t, ok)
}
