package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	domain "github.com/example/file-ingestion/domain/file"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// JetStream stores blobs in a NATS JetStream object store bucket.
type JetStream struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	store  jetstream.ObjectStore
	bucket string
}

// Compile-time interface check.
var _ Backend = (*JetStream)(nil)

// NewJetStream connects to NATS and opens (or creates) the bucket.
func NewJetStream(ctx context.Context, natsURL, bucket string) (*JetStream, error) {
	conn, err := nats.Connect(natsURL, nats.Name("file-ingestion"))
	if err != nil {
		return nil, domain.StorageError.New("connect to NATS: %v", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, domain.StorageError.New("create JetStream context: %v", err)
	}

	store, err := js.ObjectStore(ctx, bucket)
	if err != nil {
		store, err = js.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{
			Bucket:      bucket,
			Description: "File ingestion blobs",
		})
		if err != nil {
			conn.Close()
			return nil, domain.StorageError.New("create object store bucket %q: %v", bucket, err)
		}
	}

	return &JetStream{
		conn:   conn,
		js:     js,
		store:  store,
		bucket: bucket,
	}, nil
}

// Name returns the backend name.
func (s *JetStream) Name() string {
	return "jetstream"
}

// KeyStyle returns KeyStyleUnique.
func (s *JetStream) KeyStyle() KeyStyle {
	return KeyStyleUnique
}

// Bucket returns the bucket name.
func (s *JetStream) Bucket() string {
	return s.bucket
}

// Put stores data under key with the content type as an object header.
func (s *JetStream) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = domain.DefaultContentType
	}
	meta := jetstream.ObjectMeta{
		Name: key,
		Headers: nats.Header{
			"Content-Type": []string{contentType},
		},
	}
	if _, err := s.store.Put(ctx, meta, bytes.NewReader(data)); err != nil {
		return domain.StorageError.New("put %q: %v", key, err)
	}
	return nil
}

// Get retrieves the blob at key.
func (s *JetStream) Get(ctx context.Context, key string) (*Object, error) {
	result, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrObjectNotFound) {
			return nil, notFound(key)
		}
		return nil, domain.StorageError.New("get %q: %v", key, err)
	}
	defer result.Close()

	data, err := io.ReadAll(result)
	if err != nil {
		return nil, domain.StorageError.New("read %q: %v", key, err)
	}

	info, err := result.Info()
	if err != nil {
		return nil, domain.StorageError.New("info %q: %v", key, err)
	}

	return &Object{
		Key:         key,
		Data:        data,
		ContentType: headerContentType(info.Headers),
	}, nil
}

// Exists reports whether key is present in the bucket.
func (s *JetStream) Exists(ctx context.Context, key string) (bool, error) {
	if _, err := s.store.GetInfo(ctx, key); err != nil {
		if errors.Is(err, jetstream.ErrObjectNotFound) {
			return false, nil
		}
		return false, domain.StorageError.New("stat %q: %v", key, err)
	}
	return true, nil
}

// Delete removes the blob at key. A key that was already deleted reports ErrObjectNotFound.
func (s *JetStream) Delete(ctx context.Context, key string) error {
	exists, err := s.Exists(ctx, key)
	if err != nil {
		return err
	}
	if !exists {
		return notFound(key)
	}
	if err := s.store.Delete(ctx, key); err != nil {
		if errors.Is(err, jetstream.ErrObjectNotFound) {
			return notFound(key)
		}
		return domain.StorageError.New("delete %q: %v", key, err)
	}
	return nil
}

// Copy duplicates srcKey into dstKey, keeping its content type.
func (s *JetStream) Copy(ctx context.Context, srcKey, dstKey string) error {
	obj, err := s.Get(ctx, srcKey)
	if err != nil {
		return err
	}
	if err := s.Put(ctx, dstKey, obj.Data, obj.ContentType); err != nil {
		return fmt.Errorf("copy %q to %q: %w", srcKey, dstKey, err)
	}
	return nil
}

// IsConnected returns whether the NATS connection is active.
func (s *JetStream) IsConnected() bool {
	return s.conn != nil && s.conn.IsConnected()
}

// Close closes the NATS connection.
func (s *JetStream) Close() error {
	if s.conn != nil {
		s.conn.Close()
	}
	return nil
}

// headerContentType extracts Content-Type from headers with a default fallback.
func headerContentType(headers nats.Header) string {
	if headers != nil {
		if ct := headers.Get("Content-Type"); ct != "" {
			return ct
		}
	}
	return domain.DefaultContentType
}
