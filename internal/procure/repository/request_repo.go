package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitfantasy/sitemat/internal/procure/entity"
	"gorm.io/gorm"
)

// RequestRepository 物资申请仓库
type RequestRepository struct {
	db *gorm.DB
}

func NewRequestRepository(db *gorm.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// CreateGroup 原子创建一个申请组的全部行项
func (r *RequestRepository) CreateGroup(ctx context.Context, items []entity.RequestItem) error {
	return r.db.WithContext(ctx).Create(&items).Error
}

// FindByID 根据ID查找行项
func (r *RequestRepository) FindByID(ctx context.Context, id string) (*entity.RequestItem, error) {
	var item entity.RequestItem
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

// FindByIDs 批量查找行项
func (r *RequestRepository) FindByIDs(ctx context.Context, ids []string) ([]entity.RequestItem, error) {
	var items []entity.RequestItem
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&items).Error
	return items, err
}

// FindByGroup 查找申请组的全部行项，按item_order排序
func (r *RequestRepository) FindByGroup(ctx context.Context, requestNumber string) ([]entity.RequestItem, error) {
	var items []entity.RequestItem
	err := r.db.WithContext(ctx).
		Where("request_number = ?", requestNumber).
		Order("item_order ASC").
		Find(&items).Error
	return items, err
}

// ListGroupNumbers 分页列出申请组号（按组内最新创建时间倒序）
func (r *RequestRepository) ListGroupNumbers(ctx context.Context, page, pageSize int, filters map[string]string) ([]string, int64, error) {
	query := r.db.WithContext(ctx).Model(&entity.RequestItem{})

	if createdBy := filters["created_by"]; createdBy != "" {
		query = query.Where("created_by = ?", createdBy)
	}
	if status := filters["status"]; status != "" {
		query = query.Where("status = ?", status)
	}
	if search := filters["search"]; search != "" {
		query = query.Where("material_name ILIKE ? OR request_number ILIKE ?", "%"+search+"%", "%"+search+"%")
	}

	base := query.Select("request_number").Group("request_number")

	var total int64
	if err := r.db.WithContext(ctx).Table("(?) AS groups", base).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var numbers []string
	offset := (page - 1) * pageSize
	err := query.
		Select("request_number").
		Group("request_number").
		Order("MAX(created_at) DESC").
		Offset(offset).
		Limit(pageSize).
		Pluck("request_number", &numbers).Error

	return numbers, total, err
}

// FindByGroups 按组号集合取行项
func (r *RequestRepository) FindByGroups(ctx context.Context, requestNumbers []string) ([]entity.RequestItem, error) {
	var items []entity.RequestItem
	err := r.db.WithContext(ctx).
		Where("request_number IN ?", requestNumbers).
		Order("request_number, item_order ASC").
		Find(&items).Error
	return items, err
}

// UpdateStatusCAS 带前置状态守卫的单行状态更新。
// 前置状态不再成立时返回ErrStale，调用方据此报告并发冲突。
func (r *RequestRepository) UpdateStatusCAS(ctx context.Context, id, expectedStatus string, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()
	res := r.db.WithContext(ctx).
		Model(&entity.RequestItem{}).
		Where("id = ? AND status = ?", id, expectedStatus).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStale
	}
	return nil
}

// UpdateGrantCAS 复核许可落账：仅当行项仍在recheck且账本与读取时的快照
// 一致才写入。并发授予会使快照失效，返回ErrStale而不是覆盖已落账的许可。
func (r *RequestRepository) UpdateGrantCAS(ctx context.Context, id, priorAction string, priorSplit bool, directAction string, splitApproved bool) error {
	res := r.db.WithContext(ctx).
		Model(&entity.RequestItem{}).
		Where("id = ? AND status = ? AND direct_action = ? AND is_split_approved = ?",
			id, entity.StatusRecheck, priorAction, priorSplit).
		Updates(map[string]interface{}{
			"direct_action":     directAction,
			"is_split_approved": splitApproved,
			"updated_at":        time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStale
	}
	return nil
}

// DeleteDraft 删除草稿行项（状态守卫防止删除已提交行项）
func (r *RequestRepository) DeleteDraft(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND status = ?", id, entity.StatusDraft).
		Delete(&entity.RequestItem{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStale
	}
	return nil
}

// GenerateRequestNumber 生成申请组号 REQ-{year}-{4位}
func (r *RequestRepository) GenerateRequestNumber(ctx context.Context) (string, error) {
	year := time.Now().Format("2006")
	prefix := fmt.Sprintf("REQ-%s-", year)

	var maxCode string
	err := r.db.WithContext(ctx).
		Model(&entity.RequestItem{}).
		Select("COALESCE(MAX(request_number), '')").
		Where("request_number LIKE ?", prefix+"%").
		Scan(&maxCode).Error
	if err != nil {
		return "", err
	}

	var seq int
	if maxCode != "" {
		fmt.Sscanf(maxCode, "REQ-"+year+"-%04d", &seq)
	}
	seq++
	return fmt.Sprintf("REQ-%s-%04d", year, seq), nil
}
