package storage

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/freewebtopdf/redirector/internal/domain"
)

// URIRegistry remembers the URI each content item was last saved with.
// It backs the lifecycle manager's view of the persisted URI.
type URIRegistry struct {
	db *gorm.DB
}

// NewURIRegistry migrates the content URI table
func NewURIRegistry(db *gorm.DB) (*URIRegistry, error) {
	if err := db.AutoMigrate(&ContentURI{}); err != nil {
		return nil, domain.NewAppErrorWithCause(domain.ErrInternal, "Failed to migrate content URI schema", 500, err, nil)
	}
	return &URIRegistry{db: db}, nil
}

// PersistedURI returns the stored URI of a content item, or "" when none was saved
func (r *URIRegistry) PersistedURI(ctx context.Context, contentID, siteID uint64) (string, error) {
	var row ContentURI
	err := r.db.WithContext(ctx).Where("content_id = ? AND site_id = ?", contentID, siteID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", translate(ctx, err, "persisted_uri", map[string]any{"content_id": contentID})
	}
	return row.URI, nil
}

// SetURI records uri as the persisted URI of a content item
func (r *URIRegistry) SetURI(ctx context.Context, contentID, siteID uint64, uri string) error {
	row := ContentURI{ContentID: contentID, SiteID: siteID, URI: uri, UpdatedAt: time.Now()}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "content_id"}, {Name: "site_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"uri", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return translate(ctx, err, "set_uri", map[string]any{"content_id": contentID})
	}
	return nil
}

// DeleteURI forgets a content item, used when it is deleted
func (r *URIRegistry) DeleteURI(ctx context.Context, contentID, siteID uint64) error {
	err := r.db.WithContext(ctx).Where("content_id = ? AND site_id = ?", contentID, siteID).Delete(&ContentURI{}).Error
	if err != nil {
		return translate(ctx, err, "delete_uri", map[string]any{"content_id": contentID})
	}
	return nil
}
