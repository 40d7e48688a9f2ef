package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bitfantasy/sitemat/internal/procure/entity"
	"github.com/bitfantasy/sitemat/internal/procure/repository"
	"github.com/bitfantasy/sitemat/internal/procure/workflow"
	"github.com/bitfantasy/sitemat/internal/sse"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const groupViewCacheTTL = 30 * time.Second

// Actor 动作执行者（身份 + JWT解析出的角色，角色缺失时回落到用户表）
type Actor struct {
	ID   string
	Role workflow.Role
}

// GroupView 申请组读模型：全部行项 + 派生组状态
type GroupView struct {
	RequestNumber string               `json:"request_number"`
	Status        string               `json:"status"`
	Items         []entity.RequestItem `json:"items"`
}

// RequestService 物资申请服务
type RequestService struct {
	repo      *repository.RequestRepository
	userRepo  *repository.UserRepository
	inventory *InventoryService
	rdb       *redis.Client
}

func NewRequestService(repo *repository.RequestRepository, userRepo *repository.UserRepository, inventory *InventoryService, rdb *redis.Client) *RequestService {
	return &RequestService{
		repo:      repo,
		userRepo:  userRepo,
		inventory: inventory,
		rdb:       rdb,
	}
}

// SubmitGroupRequest 提交申请组请求
type SubmitGroupRequest struct {
	Submit bool              `json:"submit"` // true=直接提交审批，false=存草稿
	Items  []SubmitGroupItem `json:"items" binding:"required"`
}

type SubmitGroupItem struct {
	MaterialName  string     `json:"material_name" binding:"required"`
	Quantity      float64    `json:"quantity" binding:"required"`
	Unit          string     `json:"unit"`
	Description   string     `json:"description"`
	Specification string     `json:"specification"`
	Urgent        bool       `json:"urgent"`
	RequiredDate  *time.Time `json:"required_date"`
}

// SubmitGroup 创建申请组：同一request_number下原子创建全部行项
func (s *RequestService) SubmitGroup(ctx context.Context, userID string, req *SubmitGroupRequest) (*GroupView, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("申请组必须至少包含一个行项")
	}

	number, err := s.repo.GenerateRequestNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("生成申请组号失败: %w", err)
	}

	status := entity.StatusDraft
	if req.Submit {
		status = entity.StatusPending
	}

	items := make([]entity.RequestItem, 0, len(req.Items))
	for i, it := range req.Items {
		unit := it.Unit
		if unit == "" {
			unit = "pcs"
		}
		items = append(items, entity.RequestItem{
			ID:            uuid.New().String()[:32],
			RequestNumber: number,
			ItemOrder:     i + 1,
			MaterialName:  it.MaterialName,
			Quantity:      it.Quantity,
			Unit:          unit,
			Description:   it.Description,
			Specification: it.Specification,
			Urgent:        it.Urgent,
			RequiredDate:  it.RequiredDate,
			Status:        status,
			CreatedBy:     userID,
		})
	}

	if err := s.repo.CreateGroup(ctx, items); err != nil {
		return nil, err
	}

	sse.PublishGroupUpdate(number, "", "submitted")
	return &GroupView{
		RequestNumber: number,
		Status:        entity.DeriveGroupStatus(items),
		Items:         items,
	}, nil
}

// SendGroup 草稿组整体送审（draft → pending）
func (s *RequestService) SendGroup(ctx context.Context, requestNumber, actorID string) (*GroupView, error) {
	items, err := s.repo.FindByGroup(ctx, requestNumber)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, repository.ErrNotFound
	}

	for i := range items {
		decision, err := workflow.Decide(workflow.Input{
			Status:    items[i].Status,
			Action:    workflow.ActionSend,
			Role:      workflow.RoleSiteEngineer,
			ActorID:   actorID,
			CreatedBy: items[i].CreatedBy,
		})
		if err != nil {
			return nil, err
		}
		if err := s.repo.UpdateStatusCAS(ctx, items[i].ID, items[i].Status, map[string]interface{}{
			"status": decision.NextStatus,
		}); err != nil {
			if errors.Is(err, repository.ErrStale) {
				return nil, workflow.ErrConflict(items[i].ID, items[i].Status)
			}
			return nil, err
		}
		items[i].Status = decision.NextStatus
	}

	s.invalidateGroup(ctx, requestNumber)
	sse.PublishGroupUpdate(requestNumber, "", "sent")
	return &GroupView{
		RequestNumber: requestNumber,
		Status:        entity.DeriveGroupStatus(items),
		Items:         items,
	}, nil
}

// DeleteDraftItem 删除草稿行项（仅创建人）
func (s *RequestService) DeleteDraftItem(ctx context.Context, itemID, actorID string) error {
	item, err := s.repo.FindByID(ctx, itemID)
	if err != nil {
		return err
	}

	decision, err := workflow.Decide(workflow.Input{
		Status:    item.Status,
		Action:    workflow.ActionDelete,
		Role:      workflow.RoleSiteEngineer,
		ActorID:   actorID,
		CreatedBy: item.CreatedBy,
	})
	if err != nil {
		return err
	}
	if !decision.Deleted {
		return workflow.ErrInvalidTransition(item.Status, workflow.ActionDelete)
	}

	if err := s.repo.DeleteDraft(ctx, itemID); err != nil {
		if errors.Is(err, repository.ErrStale) {
			return workflow.ErrConflict(itemID, entity.StatusDraft)
		}
		return err
	}

	s.invalidateGroup(ctx, item.RequestNumber)
	sse.PublishGroupUpdate(item.RequestNumber, itemID, "deleted")
	return nil
}

// TransitionPayload 行项流转的附加输入
type TransitionPayload struct {
	Reason string          `json:"reason"`
	Intent workflow.Intent `json:"intent"`
}

// Transition 单行项流转：加载当前状态 → 纯引擎决策 → 带前置状态守卫落库。
// 前置状态被并发修改时返回conflict，由调用方决定是否重试。
func (s *RequestService) Transition(ctx context.Context, itemID string, action workflow.Action, actor Actor, payload TransitionPayload) (*entity.RequestItem, error) {
	item, err := s.repo.FindByID(ctx, itemID)
	if err != nil {
		return nil, err
	}

	role, err := s.resolveRole(ctx, actor)
	if err != nil {
		return nil, err
	}

	granted := workflow.DecodeCapability(item.DirectAction, item.IsSplitApproved)
	input := workflow.Input{
		Status:            item.Status,
		Action:            action,
		Role:              role,
		ActorID:           actor.ID,
		CreatedBy:         item.CreatedBy,
		Reason:            payload.Reason,
		Intent:            payload.Intent,
		Granted:           granted,
		MaterialName:      item.MaterialName,
		RequestedQuantity: item.Quantity,
	}

	// 直发路径需要库存预言机读数
	if needsStock(action, payload.Intent) {
		stock, _, err := s.inventory.StockFor(ctx, item.MaterialName)
		if err != nil {
			return nil, fmt.Errorf("读取库存失败: %w", err)
		}
		input.StockQuantity = stock
	}

	decision, err := workflow.Decide(input)
	if err != nil {
		return nil, err
	}
	if decision.Deleted {
		return nil, s.DeleteDraftItem(ctx, itemID, actor.ID)
	}

	updates := map[string]interface{}{"status": decision.NextStatus}
	if decision.RejectionReason != "" {
		updates["rejection_reason"] = decision.RejectionReason
	} else if entity.IsRejectedStatus(item.Status) && !entity.IsRejectedStatus(decision.NextStatus) {
		updates["rejection_reason"] = ""
	}
	if !decision.Grant.IsZero() {
		directAction, splitApproved := (granted | decision.Grant).Encode()
		updates["direct_action"] = directAction
		updates["is_split_approved"] = splitApproved
	}
	now := time.Now()
	if decision.StampApproval {
		updates["approved_by"] = actor.ID
		updates["approved_at"] = now
	}
	if decision.StampDelivery {
		updates["delivery_marked_at"] = now
	}

	if err := s.repo.UpdateStatusCAS(ctx, itemID, item.Status, updates); err != nil {
		if errors.Is(err, repository.ErrStale) {
			return nil, workflow.ErrConflict(itemID, item.Status)
		}
		return nil, err
	}

	s.invalidateGroup(ctx, item.RequestNumber)
	sse.PublishGroupUpdate(item.RequestNumber, itemID, string(action))

	return s.repo.FindByID(ctx, itemID)
}

// GrantPermission 复核许可授予。重复授予幂等：返回成功且不落库。
func (s *RequestService) GrantPermission(ctx context.Context, itemID, capability string, actor Actor) (*entity.RequestItem, error) {
	capBit, err := workflow.ParseCapability(capability)
	if err != nil {
		return nil, err
	}

	item, err := s.repo.FindByID(ctx, itemID)
	if err != nil {
		return nil, err
	}

	role, err := s.resolveRole(ctx, actor)
	if err != nil {
		return nil, err
	}

	granted := workflow.DecodeCapability(item.DirectAction, item.IsSplitApproved)
	merged, already, err := workflow.DecideGrant(item.Status, granted, capBit, role)
	if err != nil {
		return nil, err
	}
	if already {
		return item, nil
	}

	directAction, splitApproved := merged.Encode()
	if err := s.repo.UpdateGrantCAS(ctx, itemID, item.DirectAction, item.IsSplitApproved, directAction, splitApproved); err != nil {
		if errors.Is(err, repository.ErrStale) {
			return nil, workflow.ErrConflict(itemID, entity.StatusRecheck)
		}
		return nil, err
	}

	s.invalidateGroup(ctx, item.RequestNumber)
	sse.PublishGroupUpdate(item.RequestNumber, itemID, "permission_granted")

	item.DirectAction = directAction
	item.IsSplitApproved = splitApproved
	return item, nil
}

// MarkDelivered 创建人签收（delivery_stage/out_for_delivery → delivered）
func (s *RequestService) MarkDelivered(ctx context.Context, itemID, actorID string) (*entity.RequestItem, error) {
	return s.Transition(ctx, itemID, workflow.ActionMarkDelivered, Actor{ID: actorID, Role: workflow.RoleSiteEngineer}, TransitionPayload{})
}

// GetGroupView 申请组读模型（redis短缓存，写路径统一失效）
func (s *RequestService) GetGroupView(ctx context.Context, requestNumber string) (*GroupView, error) {
	if s.rdb != nil {
		if cached, err := s.rdb.Get(ctx, groupViewKey(requestNumber)).Result(); err == nil && cached != "" {
			var view GroupView
			if json.Unmarshal([]byte(cached), &view) == nil {
				return &view, nil
			}
		}
	}

	items, err := s.repo.FindByGroup(ctx, requestNumber)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, repository.ErrNotFound
	}

	view := &GroupView{
		RequestNumber: requestNumber,
		Status:        entity.DeriveGroupStatus(items),
		Items:         items,
	}

	if s.rdb != nil {
		if data, err := json.Marshal(view); err == nil {
			s.rdb.Set(ctx, groupViewKey(requestNumber), data, groupViewCacheTTL)
		}
	}
	return view, nil
}

// ListGroups 分页列出申请组
func (s *RequestService) ListGroups(ctx context.Context, page, pageSize int, filters map[string]string) ([]GroupView, int64, error) {
	numbers, total, err := s.repo.ListGroupNumbers(ctx, page, pageSize, filters)
	if err != nil {
		return nil, 0, err
	}
	if len(numbers) == 0 {
		return []GroupView{}, total, nil
	}

	items, err := s.repo.FindByGroups(ctx, numbers)
	if err != nil {
		return nil, 0, err
	}

	byNumber := make(map[string][]entity.RequestItem)
	for _, it := range items {
		byNumber[it.RequestNumber] = append(byNumber[it.RequestNumber], it)
	}

	views := make([]GroupView, 0, len(numbers))
	for _, n := range numbers {
		group := byNumber[n]
		views = append(views, GroupView{
			RequestNumber: n,
			Status:        entity.DeriveGroupStatus(group),
			Items:         group,
		})
	}
	return views, total, nil
}

func (s *RequestService) resolveRole(ctx context.Context, actor Actor) (workflow.Role, error) {
	if actor.Role != "" {
		return actor.Role, nil
	}
	user, err := s.userRepo.FindByID(ctx, actor.ID)
	if err != nil {
		return "", fmt.Errorf("解析角色失败: %w", err)
	}
	return workflow.Role(user.Role), nil
}

func (s *RequestService) invalidateGroup(ctx context.Context, requestNumber string) {
	if s.rdb != nil {
		s.rdb.Del(ctx, groupViewKey(requestNumber))
	}
}

func groupViewKey(requestNumber string) string {
	return "sitemat:group_view:" + requestNumber
}

func needsStock(action workflow.Action, intent workflow.Intent) bool {
	if action == workflow.ActionDispatchDelivery {
		return true
	}
	return action == workflow.ActionApprove && intent.DirectDelivery
}
