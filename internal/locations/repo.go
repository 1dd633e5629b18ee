package locations

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/feedledger-backend/pkg/db/models"
)

// Directory reads the site hierarchy owned by the farm directory.
type Directory interface {
	FindSite(ctx context.Context, id uuid.UUID) (*models.Site, error)
	FindBuilding(ctx context.Context, id uuid.UUID) (*models.Building, error)
}

// Repository is the gorm-backed Directory.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindSite returns gorm.ErrRecordNotFound when the site does not exist.
func (r *Repository) FindSite(ctx context.Context, id uuid.UUID) (*models.Site, error) {
	var site models.Site
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&site).Error; err != nil {
		return nil, err
	}
	return &site, nil
}

func (r *Repository) FindBuilding(ctx context.Context, id uuid.UUID) (*models.Building, error) {
	var building models.Building
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&building).Error; err != nil {
		return nil, err
	}
	return &building, nil
}
