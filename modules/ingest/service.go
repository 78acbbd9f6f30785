// Package ingest implements the file ingestion pipelines on top of a blob backend and a metadata store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	domain "github.com/example/file-ingestion/domain/file"
	"github.com/example/file-ingestion/modules/cache"
	"github.com/example/file-ingestion/modules/storage"
	"github.com/go-monolith/mono/pkg/types"
)

// Records is the metadata store the pipelines write through.
type Records interface {
	Create(ctx context.Context, rec *domain.Record) error
	FindByID(ctx context.Context, id uint) (*domain.Record, error)
	FindByIDs(ctx context.Context, ids []uint) ([]domain.Record, error)
	Update(ctx context.Context, rec *domain.Record) error
	Delete(ctx context.Context, id uint) error
	KeyExists(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, f domain.Filter) ([]domain.Record, error)
}

// Config holds the pipeline settings.
type Config struct {
	ScratchDir        string
	OperationTimeout  time.Duration
	MaxExtractedBytes int64
}

// DefaultConfig returns the default pipeline settings.
func DefaultConfig() Config {
	return Config{
		ScratchDir:        filepath.Join(os.TempDir(), "file-ingestion"),
		OperationTimeout:  30 * time.Second,
		MaxExtractedBytes: 4 << 30,
	}
}

// Service runs the ingestion pipelines.
type Service struct {
	backend  storage.Backend
	records  Records
	listings *cache.Cache
	resolver Resolver
	expander *Expander
	observer *Observer
	logger   types.Logger
	timeout  time.Duration
}

// NewService wires a pipeline service. listings and observer may be nil.
func NewService(cfg Config, backend storage.Backend, records Records, listings *cache.Cache, observer *Observer, logger types.Logger) *Service {
	if backend == nil || records == nil {
		panic("ingest: backend and records are required")
	}
	if cfg.ScratchDir == "" {
		cfg.ScratchDir = DefaultConfig().ScratchDir
	}
	return &Service{
		backend:  backend,
		records:  records,
		listings: listings,
		resolver: ResolverFor(backend.KeyStyle(), records),
		expander: NewExpander(cfg.ScratchDir, cfg.MaxExtractedBytes, logger),
		observer: observer,
		logger:   logger,
		timeout:  cfg.OperationTimeout,
	}
}

// bounded derives the context used for a single backend call.
func (s *Service) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Upload stores every item, expanding zip archives one level deep.
// Items fail independently; the result lists every failure.
func (s *Service) Upload(ctx context.Context, items []domain.Item) domain.UploadResult {
	start := time.Now()
	stored := []domain.Record{}
	if len(items) == 0 {
		return domain.UploadResult{BatchResult: domain.Precondition(domain.OpUpload, nil), Stored: stored}
	}

	var fileErrors []domain.FileError
	for _, item := range items {
		if fe := Validate(item); fe != nil {
			fileErrors = append(fileErrors, *fe)
			continue
		}

		if IsArchive(item.Name) {
			memberErrors := s.expander.Expand(ctx, item, func(ctx context.Context, member domain.Item) error {
				rec, err := s.storeItem(ctx, member)
				if err != nil {
					return err
				}
				stored = append(stored, *rec)
				return nil
			})
			fileErrors = append(fileErrors, memberErrors...)
			continue
		}

		rec, err := s.storeItem(ctx, item)
		if err != nil {
			s.logger.Warn("Failed to store file", "file", item.Name, "error", err)
			fileErrors = append(fileErrors, domain.FileError{Item: item.Name, Message: err.Error()})
			continue
		}
		stored = append(stored, *rec)
	}

	result := domain.Summarize(domain.OpUpload, len(stored), fileErrors)
	s.observer.observe("upload", start, len(result.Errors))
	s.logger.Info("Upload batch processed",
		"items", len(items),
		"stored", len(stored),
		"failed", len(fileErrors),
		"outcome", result.Outcome)
	return domain.UploadResult{BatchResult: result, Stored: stored}
}

// storeItem writes one validated item to the backend and records its metadata.
func (s *Service) storeItem(ctx context.Context, item domain.Item) (*domain.Record, error) {
	name := displayName(item.Name)
	if name == "" {
		return nil, domain.ValidationError.New(domain.MsgNameRequired)
	}

	data, err := io.ReadAll(item.Content)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if len(data) == 0 {
		return nil, domain.ValidationError.New(domain.MsgEmptyFile)
	}

	key, err := s.resolver.Resolve(ctx, name)
	if err != nil {
		return nil, err
	}

	contentType := item.ContentType
	if contentType == "" || contentType == domain.DefaultContentType {
		contentType = domain.ContentTypeFor(name)
	}

	opCtx, cancel := s.bounded(ctx)
	defer cancel()
	if err := s.backend.Put(opCtx, key, data, contentType); err != nil {
		return nil, err
	}

	rec := &domain.Record{
		Name:       name,
		Type:       domain.TypeOf(name),
		StorageKey: key,
		Size:       int64(len(data)),
		UploadedAt: time.Now().UTC(),
	}
	if err := s.records.Create(ctx, rec); err != nil {
		if derr := s.backend.Delete(opCtx, key); derr != nil && !errors.Is(derr, storage.ErrObjectNotFound) {
			s.logger.Warn("Failed to remove orphaned blob", "key", key, "error", derr)
		}
		return nil, err
	}

	s.observer.stored(len(data))
	s.logger.Debug("File stored", "id", rec.ID, "key", key, "size", rec.Size)
	return rec, nil
}

// DownloadByID returns the record and bytes of file id.
// It returns domain.ErrNotFound when either the record or its blob is missing.
func (s *Service) DownloadByID(ctx context.Context, id uint) (*domain.Download, error) {
	start := time.Now()
	rec, err := s.records.FindByID(ctx, id)
	if err != nil {
		s.observer.observe("download", start, 1)
		return nil, err
	}

	opCtx, cancel := s.bounded(ctx)
	defer cancel()
	obj, err := s.backend.Get(opCtx, rec.StorageKey)
	if err != nil {
		s.observer.observe("download", start, 1)
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: blob for file %d is missing", domain.ErrNotFound, id)
		}
		return nil, err
	}

	s.observer.observe("download", start, 0)
	return &domain.Download{Record: *rec, ContentType: obj.ContentType, Data: obj.Data}, nil
}

// ListFiles returns the records matching f, served from the listing cache when one is configured.
// Cached listings are not invalidated by writes and may lag until their entry expires.
func (s *Service) ListFiles(ctx context.Context, f domain.Filter) ([]domain.Record, error) {
	load := func(ctx context.Context) ([]domain.Record, error) {
		return s.records.List(ctx, f)
	}
	if s.listings == nil {
		return load(ctx)
	}
	return cache.Fetch(ctx, s.listings, cache.ListingKey(f), cache.PolicyFor(f), load)
}

// DownloadByFilter returns the bytes of every file matching f.
// Files whose blob cannot be read are reported in the result errors.
func (s *Service) DownloadByFilter(ctx context.Context, f domain.Filter) (domain.DownloadBatch, error) {
	start := time.Now()
	files := []domain.Download{}

	records, err := s.ListFiles(ctx, f)
	if err != nil {
		return domain.DownloadBatch{}, err
	}
	if len(records) == 0 {
		return domain.DownloadBatch{BatchResult: domain.Precondition(domain.OpDownload, nil), Files: files}, nil
	}

	var fileErrors []domain.FileError
	for _, rec := range records {
		opCtx, cancel := s.bounded(ctx)
		obj, err := s.backend.Get(opCtx, rec.StorageKey)
		cancel()
		if err != nil {
			msg := err.Error()
			if errors.Is(err, storage.ErrObjectNotFound) {
				msg = domain.MsgBlobNotFound
			}
			fileErrors = append(fileErrors, domain.FileError{Item: rec.Name, Message: msg})
			continue
		}
		files = append(files, domain.Download{Record: rec, ContentType: obj.ContentType, Data: obj.Data})
	}

	result := domain.Summarize(domain.OpDownload, len(files), fileErrors)
	s.observer.observe("download_filter", start, len(fileErrors))
	return domain.DownloadBatch{BatchResult: result, Files: files}, nil
}

// UpdateByID replaces the content of file id with item.
// The old blob and record are removed before item is stored under a freshly resolved key.
// When storing fails the previous blob and record are put back under their old key and ID.
func (s *Service) UpdateByID(ctx context.Context, id uint, item domain.Item) (*domain.Record, error) {
	start := time.Now()
	if fe := Validate(item); fe != nil {
		return nil, domain.ValidationError.New("%s", fe.Message)
	}

	old, err := s.records.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	opCtx, cancel := s.bounded(ctx)
	defer cancel()
	saved, err := s.backend.Get(opCtx, old.StorageKey)
	if err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		return nil, err
	}
	if err := s.backend.Delete(opCtx, old.StorageKey); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		return nil, err
	}
	if err := s.records.Delete(ctx, old.ID); err != nil {
		return nil, errors.Join(err, s.restoreBlob(ctx, old, saved))
	}

	rec, err := s.storeItem(ctx, item)
	if err != nil {
		s.observer.observe("update", start, 1)
		if rerr := s.restore(ctx, old, saved); rerr != nil {
			s.logger.Error("Failed to restore file after update failure", "id", old.ID, "key", old.StorageKey, "error", rerr)
			return nil, errors.Join(err, rerr)
		}
		s.logger.Warn("Update failed, previous version restored", "id", old.ID, "error", err)
		return nil, err
	}

	s.observer.observe("update", start, 0)
	s.logger.Info("File updated", "previous_id", old.ID, "id", rec.ID, "key", rec.StorageKey)
	return rec, nil
}

// restore puts back the blob and record removed by a failed update.
func (s *Service) restore(ctx context.Context, old *domain.Record, saved *storage.Object) error {
	if err := s.restoreBlob(ctx, old, saved); err != nil {
		return err
	}
	ctx, cancel := s.bounded(context.WithoutCancel(ctx))
	defer cancel()
	restored := *old
	return s.records.Create(ctx, &restored)
}

func (s *Service) restoreBlob(ctx context.Context, old *domain.Record, saved *storage.Object) error {
	if saved == nil {
		return nil
	}
	ctx, cancel := s.bounded(context.WithoutCancel(ctx))
	defer cancel()
	return s.backend.Put(ctx, old.StorageKey, saved.Data, saved.ContentType)
}

// Rename gives file id a new display name, keeping its original extension.
// Any extension on newName is replaced; a dot-prefixed name such as ".env" is all base.
// The blob is copied to a freshly resolved key and the old key is removed.
// A failed removal of the old key is logged and not rolled back.
func (s *Service) Rename(ctx context.Context, id uint, newName string) (*domain.Record, error) {
	start := time.Now()
	base, _ := splitExt(displayName(newName))
	if base == "" {
		return nil, domain.ValidationError.New(domain.MsgNameRequired)
	}

	rec, err := s.records.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	_, ext := splitExt(rec.Name)
	name := base + ext

	opCtx, cancel := s.bounded(ctx)
	defer cancel()
	exists, err := s.backend.Exists(opCtx, rec.StorageKey)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: blob for file %d is missing", domain.ErrNotFound, id)
	}

	key, err := s.resolver.Resolve(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := s.backend.Copy(opCtx, rec.StorageKey, key); err != nil {
		return nil, err
	}

	oldKey := rec.StorageKey
	oldRemoved := true
	if err := s.backend.Delete(opCtx, oldKey); err != nil {
		oldRemoved = false
		s.logger.Warn("Old key left behind after rename", "key", oldKey, "error", err)
	}

	rec.Name = name
	rec.Type = domain.TypeOf(name)
	rec.StorageKey = key
	if err := s.records.Update(ctx, rec); err != nil {
		if oldRemoved {
			s.logger.Error("Renamed blob not recorded", "id", id, "old_key", oldKey, "key", key, "error", err)
		} else if derr := s.backend.Delete(opCtx, key); derr != nil {
			s.logger.Warn("Failed to remove renamed copy", "key", key, "error", derr)
		}
		s.observer.observe("rename", start, 1)
		return nil, err
	}

	s.observer.observe("rename", start, 0)
	s.logger.Info("File renamed", "id", rec.ID, "name", name, "key", key)
	return rec, nil
}

// DeleteBatch removes the blob and record of every id.
// A record whose blob cannot be removed is kept.
func (s *Service) DeleteBatch(ctx context.Context, ids []uint) domain.DeleteResult {
	start := time.Now()
	deleted := []uint{}
	if len(ids) == 0 {
		return domain.DeleteResult{BatchResult: domain.Precondition(domain.OpDelete, nil), Deleted: deleted}
	}

	found, err := s.records.FindByIDs(ctx, ids)
	if err != nil {
		s.observer.observe("delete", start, len(ids))
		return domain.DeleteResult{
			BatchResult: domain.Summarize(domain.OpDelete, 0, []domain.FileError{{Message: err.Error()}}),
			Deleted:     deleted,
		}
	}

	present := make(map[uint]bool, len(found))
	for _, rec := range found {
		present[rec.ID] = true
	}
	var fileErrors []domain.FileError
	seen := make(map[uint]bool, len(ids))
	for _, id := range ids {
		if present[id] || seen[id] {
			continue
		}
		seen[id] = true
		fileErrors = append(fileErrors, domain.FileError{Item: strconv.FormatUint(uint64(id), 10), Message: domain.MsgNotFoundOrBad})
	}
	if len(found) == 0 {
		s.observer.observe("delete", start, len(fileErrors))
		return domain.DeleteResult{BatchResult: domain.Precondition(domain.OpDelete, fileErrors), Deleted: deleted}
	}

	for _, rec := range found {
		item := strconv.FormatUint(uint64(rec.ID), 10)
		opCtx, cancel := s.bounded(ctx)
		err := s.backend.Delete(opCtx, rec.StorageKey)
		cancel()
		if err != nil {
			msg := domain.MsgDeleteBlobErr + err.Error()
			if errors.Is(err, storage.ErrObjectNotFound) {
				msg = domain.MsgBlobNotFound
			}
			fileErrors = append(fileErrors, domain.FileError{Item: item, Message: msg})
			continue
		}
		if err := s.records.Delete(ctx, rec.ID); err != nil {
			fileErrors = append(fileErrors, domain.FileError{Item: item, Message: domain.MsgDeleteRecordErr + err.Error()})
			continue
		}
		deleted = append(deleted, rec.ID)
	}

	result := domain.Summarize(domain.OpDelete, len(deleted), fileErrors)
	s.observer.observe("delete", start, len(fileErrors))
	s.logger.Info("Delete batch processed",
		"requested", len(ids),
		"deleted", len(deleted),
		"failed", len(fileErrors),
		"outcome", result.Outcome)
	return domain.DeleteResult{BatchResult: result, Deleted: deleted}
}
