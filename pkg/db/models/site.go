package models

import (
	"time"

	"github.com/google/uuid"
)

// Site is a farm site. The table is owned by the site directory; the ledger
// only reads it.
type Site struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name      string    `gorm:"column:name;not null"`
	IsActive  bool      `gorm:"column:is_active;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Site) TableName() string { return "sites" }

// Building belongs to exactly one site.
type Building struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	SiteID    uuid.UUID `gorm:"column:site_id;type:uuid;not null;index"`
	Name      string    `gorm:"column:name;not null"`
	IsActive  bool      `gorm:"column:is_active;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Building) TableName() string { return "buildings" }
