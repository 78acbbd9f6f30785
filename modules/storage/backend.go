// Package storage provides the blob store backends used by the ingestion pipeline.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// ErrObjectNotFound is returned when a key has no blob behind it.
var ErrObjectNotFound = errors.New("object not found")

// KeyStyle tells the pipeline how storage keys should be generated for a backend.
type KeyStyle int

const (
	// KeyStyleReadable keeps keys close to the display name and resolves collisions with a counter.
	KeyStyleReadable KeyStyle = iota
	// KeyStyleUnique prefixes keys with a random token and never probes for collisions.
	KeyStyleUnique
)

// Object is a blob read back from a backend.
type Object struct {
	Key         string
	Data        []byte
	ContentType string
}

// Backend is the capability set every blob store implements.
// Absence is always reported as ErrObjectNotFound; other failures carry the file.StorageError class.
type Backend interface {
	Name() string
	KeyStyle() KeyStyle
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) (*Object, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	Copy(ctx context.Context, srcKey, dstKey string) error
}

func notFound(key string) error {
	return fmt.Errorf("%w: %s", ErrObjectNotFound, key)
}
