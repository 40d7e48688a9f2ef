package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bitfantasy/sitemat/internal/procure/entity"
	"github.com/bitfantasy/sitemat/internal/procure/repository"
	"github.com/bitfantasy/sitemat/internal/procure/workflow"
	"github.com/bitfantasy/sitemat/internal/sse"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// POService 采购订单服务。签核/驳回对PO全部行项整体生效，
// 任何"部分签核"都视为正确性缺陷，事务内校验受影响行数。
type POService struct {
	poRepo      *repository.PORepository
	requestRepo *repository.RequestRepository
	vendorRepo  *repository.VendorRepository
	db          *gorm.DB
	rdb         *redis.Client
}

func NewPOService(poRepo *repository.PORepository, requestRepo *repository.RequestRepository, vendorRepo *repository.VendorRepository, db *gorm.DB, rdb *redis.Client) *POService {
	return &POService{
		poRepo:      poRepo,
		requestRepo: requestRepo,
		vendorRepo:  vendorRepo,
		db:          db,
		rdb:         rdb,
	}
}

// CreatePORequest 创建采购订单请求
type CreatePORequest struct {
	VendorID string         `json:"vendor_id" binding:"required"`
	Lines    []CreatePOLine `json:"lines" binding:"required"`
}

type CreatePOLine struct {
	RequestItemID string  `json:"request_item_id" binding:"required"`
	Quantity      float64 `json:"quantity"` // 0=整行数量；拆分履约时传部分数量
	UnitPrice     float64 `json:"unit_price" binding:"required"`
}

// CreatePurchaseOrder 创建采购订单：同一供应商的若干申请行项聚合为一张PO，
// 每个行项生成一行sign_pending快照，行项状态进入sign_pending。
func (s *POService) CreatePurchaseOrder(ctx context.Context, userID string, req *CreatePORequest) (*entity.PurchaseOrder, error) {
	if len(req.Lines) == 0 {
		return nil, fmt.Errorf("采购订单必须至少包含一个行项")
	}

	vendor, err := s.vendorRepo.FindByID(ctx, req.VendorID)
	if err != nil {
		return nil, fmt.Errorf("供应商不存在")
	}

	seen := make(map[string]bool, len(req.Lines))
	for _, line := range req.Lines {
		if seen[line.RequestItemID] {
			return nil, workflow.ErrDuplicateLine(line.RequestItemID)
		}
		seen[line.RequestItemID] = true
		if line.UnitPrice <= 0 {
			return nil, fmt.Errorf("行项 %s 缺少有效单价", line.RequestItemID)
		}
	}

	// 加载行项并校验可下单状态（复核中的行项需已授予po许可）
	items := make(map[string]*entity.RequestItem, len(req.Lines))
	for _, line := range req.Lines {
		item, err := s.requestRepo.FindByID(ctx, line.RequestItemID)
		if err != nil {
			return nil, fmt.Errorf("申请行项 %s 不存在", line.RequestItemID)
		}
		granted := workflow.DecodeCapability(item.DirectAction, item.IsSplitApproved)
		if err := workflow.CanCreatePO(item.Status, granted); err != nil {
			return nil, err
		}
		items[line.RequestItemID] = item
	}

	poNumber, err := s.poRepo.GeneratePONumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("生成PO号失败: %w", err)
	}

	po := &entity.PurchaseOrder{
		ID:         uuid.New().String()[:32],
		PONumber:   poNumber,
		VendorID:   vendor.ID,
		SignStatus: entity.POSignPending,
		Currency:   "CNY",
		CreatedBy:  userID,
	}

	var totalAmount float64
	for i, line := range req.Lines {
		item := items[line.RequestItemID]
		qty := line.Quantity
		if qty <= 0 {
			qty = item.Quantity
		}
		lineTotal := line.UnitPrice * qty
		totalAmount += lineTotal
		po.Lines = append(po.Lines, entity.POLine{
			ID:            uuid.New().String()[:32],
			PONumber:      poNumber,
			RequestItemID: item.ID,
			MaterialName:  item.MaterialName,
			Quantity:      qty,
			Unit:          item.Unit,
			UnitPrice:     line.UnitPrice,
			LineTotal:     lineTotal,
			SortOrder:     i + 1,
		})
	}
	po.TotalAmount = totalAmount

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(po).Error; err != nil {
			return fmt.Errorf("创建PO失败: %w", err)
		}

		// 行项进入签核，前置状态守卫防并发下单
		for _, item := range items {
			res := tx.Model(&entity.RequestItem{}).
				Where("id = ? AND status = ?", item.ID, item.Status).
				Updates(map[string]interface{}{
					"status":     entity.StatusSignPending,
					"po_number":  poNumber,
					"updated_at": time.Now(),
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return workflow.ErrConflict(item.ID, item.Status)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, item := range items {
		s.invalidateGroup(ctx, item.RequestNumber)
		sse.PublishGroupUpdate(item.RequestNumber, item.ID, "po_created")
	}
	sse.PublishPOUpdate(poNumber, "created")
	return po, nil
}

// SignPurchaseOrder 签核PO：单头与全部成员行项在一个事务内整体推进
func (s *POService) SignPurchaseOrder(ctx context.Context, poNumber string, actor Actor) (*entity.PurchaseOrder, error) {
	if actor.Role != workflow.RoleManager {
		return nil, workflow.ErrUnauthorized(actor.Role, "sign_po")
	}

	po, err := s.poRepo.FindByPONumber(ctx, poNumber)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		res := tx.Model(&entity.PurchaseOrder{}).
			Where("po_number = ? AND sign_status = ?", poNumber, entity.POSignPending).
			Updates(map[string]interface{}{
				"sign_status": entity.POSigned,
				"signed_by":   actor.ID,
				"signed_at":   now,
				"updated_at":  now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return workflow.ErrConflict(poNumber, entity.POSignPending)
		}

		res = tx.Model(&entity.RequestItem{}).
			Where("po_number = ? AND status = ?", poNumber, entity.StatusSignPending).
			Updates(map[string]interface{}{
				"status":     entity.StatusReadyForDelivery,
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		// 成员行项必须全部推进，缺一即回滚
		if res.RowsAffected != int64(len(po.Lines)) {
			return fmt.Errorf("PO %s 成员行项状态不一致: 期望%d行, 实际推进%d行", poNumber, len(po.Lines), res.RowsAffected)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateLineGroups(ctx, po)
	sse.PublishPOUpdate(poNumber, "signed")
	return s.poRepo.FindByPONumber(ctx, poNumber)
}

// RejectPurchaseOrder 驳回PO。首次驳回 → sign_rejected；
// 对已驳回PO再次驳回 → 关单，成员行项进入终态rejected_po等待人工重排。
func (s *POService) RejectPurchaseOrder(ctx context.Context, poNumber, reason string, actor Actor) (*entity.PurchaseOrder, error) {
	if actor.Role != workflow.RoleManager {
		return nil, workflow.ErrUnauthorized(actor.Role, "reject_po")
	}
	if reason == "" {
		return nil, workflow.ErrMissingReason("reject_po")
	}

	po, err := s.poRepo.FindByPONumber(ctx, poNumber)
	if err != nil {
		return nil, err
	}

	var headerTo, itemFrom, itemTo string
	switch po.SignStatus {
	case entity.POSignPending:
		headerTo, itemFrom, itemTo = entity.POSignRejected, entity.StatusSignPending, entity.StatusSignRejected
	case entity.POSignRejected:
		headerTo, itemFrom, itemTo = entity.POClosedRejected, entity.StatusSignRejected, entity.StatusRejectedPO
	default:
		return nil, workflow.ErrInvalidTransition(po.SignStatus, "reject_po")
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		res := tx.Model(&entity.PurchaseOrder{}).
			Where("po_number = ? AND sign_status = ?", poNumber, po.SignStatus).
			Updates(map[string]interface{}{
				"sign_status":   headerTo,
				"reject_reason": reason,
				"updated_at":    now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return workflow.ErrConflict(poNumber, po.SignStatus)
		}

		res = tx.Model(&entity.RequestItem{}).
			Where("po_number = ? AND status = ?", poNumber, itemFrom).
			Updates(map[string]interface{}{
				"status":           itemTo,
				"rejection_reason": reason,
				"updated_at":       now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != int64(len(po.Lines)) {
			return fmt.Errorf("PO %s 成员行项状态不一致: 期望%d行, 实际驳回%d行", poNumber, len(po.Lines), res.RowsAffected)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateLineGroups(ctx, po)
	sse.PublishPOUpdate(poNumber, "rejected")
	return s.poRepo.FindByPONumber(ctx, poNumber)
}

// GetPO 获取PO详情
func (s *POService) GetPO(ctx context.Context, poNumber string) (*entity.PurchaseOrder, error) {
	return s.poRepo.FindByPONumber(ctx, poNumber)
}

// ListPOs 获取PO列表
func (s *POService) ListPOs(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.PurchaseOrder, int64, error) {
	return s.poRepo.FindAll(ctx, page, pageSize, filters)
}

func (s *POService) invalidateGroup(ctx context.Context, requestNumber string) {
	if s.rdb != nil {
		s.rdb.Del(ctx, groupViewKey(requestNumber))
	}
}

// invalidateLineGroups 失效PO成员行项所属申请组的读模型缓存
func (s *POService) invalidateLineGroups(ctx context.Context, po *entity.PurchaseOrder) {
	seen := make(map[string]bool)
	ids := make([]string, 0, len(po.Lines))
	for _, line := range po.Lines {
		ids = append(ids, line.RequestItemID)
	}
	items, err := s.requestRepo.FindByIDs(ctx, ids)
	if err != nil {
		return
	}
	for _, it := range items {
		if !seen[it.RequestNumber] {
			seen[it.RequestNumber] = true
			if s.rdb != nil {
				s.rdb.Del(ctx, groupViewKey(it.RequestNumber))
			}
			sse.PublishGroupUpdate(it.RequestNumber, it.ID, "po_status_changed")
		}
	}
}
