// Package metadata persists file records with GORM.
package metadata

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/example/file-ingestion/domain/file"
	"gorm.io/gorm"
)

// Repository provides access to file records.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new file record repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create saves a new record and fills in its ID.
// A record with a non-zero ID is inserted under that ID.
func (r *Repository) Create(ctx context.Context, rec *domain.Record) error {
	if rec.UploadedAt.IsZero() {
		rec.UploadedAt = time.Now().UTC()
	} else {
		rec.UploadedAt = rec.UploadedAt.UTC()
	}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return domain.MetadataError.New("create record %q: %v", rec.Name, err)
	}
	return nil
}

// FindByID retrieves a record by its ID.
func (r *Repository) FindByID(ctx context.Context, id uint) (*domain.Record, error) {
	var rec domain.Record
	if err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.MetadataError.New("find record %d: %v", id, err)
	}
	return &rec, nil
}

// FindByIDs returns the records that exist among ids. Missing ids are simply absent.
func (r *Repository) FindByIDs(ctx context.Context, ids []uint) ([]domain.Record, error) {
	records := []domain.Record{}
	if len(ids) == 0 {
		return records, nil
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("id").Find(&records).Error; err != nil {
		return nil, domain.MetadataError.New("find records: %v", err)
	}
	return records, nil
}

// KeyExists reports whether a live record is bound to key.
func (r *Repository) KeyExists(ctx context.Context, key string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Record{}).Where("storage_key = ?", key).Count(&count).Error; err != nil {
		return false, domain.MetadataError.New("probe key %q: %v", key, err)
	}
	return count > 0, nil
}

// Update rewrites the mutable fields of an existing record.
func (r *Repository) Update(ctx context.Context, rec *domain.Record) error {
	result := r.db.WithContext(ctx).Model(&domain.Record{}).Where("id = ?", rec.ID).Updates(map[string]any{
		"name":        rec.Name,
		"type":        rec.Type,
		"storage_key": rec.StorageKey,
		"size":        rec.Size,
	})
	if err := result.Error; err != nil {
		return domain.MetadataError.New("update record %d: %v", rec.ID, err)
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes a record by ID. Deleting an absent ID is not an error.
func (r *Repository) Delete(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Delete(&domain.Record{}, "id = ?", id).Error; err != nil {
		return domain.MetadataError.New("delete record %d: %v", id, err)
	}
	return nil
}

// List returns the records matching f ordered by ID.
func (r *Repository) List(ctx context.Context, f domain.Filter) ([]domain.Record, error) {
	q := r.db.WithContext(ctx).Model(&domain.Record{})

	switch f.Kind {
	case domain.ByName:
		q = q.Where("LOWER(name) LIKE ? ESCAPE '\\'", containsPattern(f.Text))
	case domain.ByStorageKey:
		q = q.Where("LOWER(storage_key) LIKE ? ESCAPE '\\'", containsPattern(f.Text))
	case domain.ByType:
		q = q.Where("LOWER(type) LIKE ? ESCAPE '\\'", containsPattern(f.Text))
	case domain.BySizeAtMost:
		q = q.Where("size <= ?", f.MaxSize)
	case domain.ByDateRange:
		if f.Start != nil {
			q = q.Where("uploaded_at >= ?", f.Start.UTC())
		}
		if f.End != nil {
			q = q.Where("uploaded_at <= ?", f.End.UTC())
		}
	}

	records := []domain.Record{}
	if err := q.Order("id").Find(&records).Error; err != nil {
		return nil, domain.MetadataError.New("list records: %v", err)
	}
	return records, nil
}

// Count returns the number of stored records.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Record{}).Count(&count).Error; err != nil {
		return 0, domain.MetadataError.New("count records: %v", err)
	}
	return count, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds a case-insensitive LIKE pattern matching s anywhere.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
}
