package services

import (
	"errors"

	"github.com/marketplacekit/ghl-adapter/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// gormRegistry is the durable registry backend. Same contract as the memory
// implementation; the upsert keeps per-tenant writes last-writer-wins at the
// database level.
type gormRegistry struct {
	db *gorm.DB
}

// NewGormRegistry creates an installation registry persisted through gorm.
func NewGormRegistry(db *gorm.DB) InstallationRegistry {
	return &gormRegistry{db: db}
}

func (r *gormRegistry) Put(record *models.Installation) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}},
		UpdateAll: true,
	}).Create(record).Error
}

func (r *gormRegistry) Get(tenantID string) (*models.Installation, error) {
	var record models.Installation
	if err := r.db.Where("tenant_id = ?", tenantID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *gormRegistry) Exists(tenantID string) bool {
	var count int64
	r.db.Model(&models.Installation{}).Where("tenant_id = ?", tenantID).Count(&count)
	return count > 0
}

func (r *gormRegistry) Delete(tenantID string) error {
	return r.db.Where("tenant_id = ?", tenantID).Delete(&models.Installation{}).Error
}

func (r *gormRegistry) AllTenantIDs() []string {
	var ids []string
	r.db.Model(&models.Installation{}).Pluck("tenant_id", &ids)
	return ids
}
