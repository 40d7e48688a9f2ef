package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/sitemat/internal/procure/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InventoryRepository 库存仓库（流程引擎只读）
type InventoryRepository struct {
	db *gorm.DB
}

func NewInventoryRepository(db *gorm.DB) *InventoryRepository {
	return &InventoryRepository{db: db}
}

// FindByMaterial 按物料名查库存
func (r *InventoryRepository) FindByMaterial(ctx context.Context, materialName string) (*entity.InventoryRecord, error) {
	var rec entity.InventoryRecord
	err := r.db.WithContext(ctx).Where("material_name = ?", materialName).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// Upsert 写入库存读数（外部库存系统同步入口）
func (r *InventoryRepository) Upsert(ctx context.Context, rec *entity.InventoryRecord) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "material_name"}},
			DoUpdates: clause.AssignmentColumns([]string{"quantity", "unit", "updated_at"}),
		}).
		Create(rec).Error
}

// FindAll 库存列表
func (r *InventoryRepository) FindAll(ctx context.Context, page, pageSize int) ([]entity.InventoryRecord, int64, error) {
	var recs []entity.InventoryRecord
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.InventoryRecord{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.Order("material_name ASC").Offset(offset).Limit(pageSize).Find(&recs).Error
	return recs, total, err
}
