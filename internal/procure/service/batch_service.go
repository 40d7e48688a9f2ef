package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/bitfantasy/sitemat/internal/procure/entity"
	"github.com/bitfantasy/sitemat/internal/procure/repository"
	"github.com/bitfantasy/sitemat/internal/procure/workflow"
)

// BatchService 批量操作器：把一个动作按行项当前状态与意向分片，
// 分片并发执行。分片间不回滚（至少一次语义），调用方按"N成M败"
// 解读结果并对失败项单独重试。
type BatchService struct {
	requestSvc  *RequestService
	poSvc       *POService
	requestRepo *repository.RequestRepository
}

func NewBatchService(requestSvc *RequestService, poSvc *POService, requestRepo *repository.RequestRepository) *BatchService {
	return &BatchService{
		requestSvc:  requestSvc,
		poSvc:       poSvc,
		requestRepo: requestRepo,
	}
}

// BatchRequest 批量操作请求
type BatchRequest struct {
	ItemIDs []string                   `json:"item_ids" binding:"required"`
	Action  string                     `json:"action" binding:"required"`
	Reason  string                     `json:"reason"`
	Intents map[string]workflow.Intent `json:"intents"` // 行项ID → 审批意向
}

// BatchFailure 单行项失败明细
type BatchFailure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// BatchResult 批量操作结果
type BatchResult struct {
	Succeeded []string       `json:"succeeded"`
	Failed    []BatchFailure `json:"failed"`
}

// partition 一个并发执行单元
type partition struct {
	itemIDs []string
	run     func(ctx context.Context) error
}

// BatchTransition 批量流转。校验先于一切写入：空选择、批量驳回缺原因
// 在任何分片执行前整体拒绝。
func (s *BatchService) BatchTransition(ctx context.Context, req *BatchRequest, actor Actor) (*BatchResult, error) {
	if len(req.ItemIDs) == 0 {
		return nil, fmt.Errorf("未选择任何行项")
	}
	action := workflow.Action(req.Action)
	if action == workflow.ActionReject && req.Reason == "" {
		return nil, workflow.ErrMissingReason(action)
	}

	items, err := s.requestRepo.FindByIDs(ctx, req.ItemIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]entity.RequestItem, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}

	result := &BatchResult{Succeeded: []string{}, Failed: []BatchFailure{}}
	var mu sync.Mutex

	ok := func(ids ...string) {
		mu.Lock()
		result.Succeeded = append(result.Succeeded, ids...)
		mu.Unlock()
	}
	fail := func(reason string, ids ...string) {
		mu.Lock()
		for _, id := range ids {
			result.Failed = append(result.Failed, BatchFailure{ID: id, Reason: reason})
		}
		mu.Unlock()
	}

	// 分片：sign_pending按PO整单处理；复核中带意向的行项走许可授予；
	// 其余逐行流转。
	var partitions []partition
	poGroups := make(map[string][]string) // poNumber → itemIDs

	for _, id := range req.ItemIDs {
		item, found := byID[id]
		if !found {
			fail("行项不存在", id)
			continue
		}

		switch {
		case item.Status == entity.StatusSignPending && (action == workflow.ActionApprove || action == workflow.ActionReject):
			if item.PONumber == nil || *item.PONumber == "" {
				fail("行项缺少PO关联", id)
				continue
			}
			poGroups[*item.PONumber] = append(poGroups[*item.PONumber], id)

		case item.Status == entity.StatusRecheck && action == workflow.ActionApprove && req.Intents != nil && !intentEmpty(req.Intents[id]):
			itemID := id
			intent := req.Intents[id]
			partitions = append(partitions, partition{
				itemIDs: []string{itemID},
				run: func(ctx context.Context) error {
					return s.grantIntent(ctx, itemID, intent, actor)
				},
			})

		default:
			itemID := id
			intent := workflow.Intent{}
			if req.Intents != nil {
				intent = req.Intents[itemID]
			}
			partitions = append(partitions, partition{
				itemIDs: []string{itemID},
				run: func(ctx context.Context) error {
					_, err := s.requestSvc.Transition(ctx, itemID, action, actor, TransitionPayload{
						Reason: req.Reason,
						Intent: intent,
					})
					return err
				},
			})
		}
	}

	for poNumber, ids := range poGroups {
		poNumber, ids := poNumber, ids
		partitions = append(partitions, partition{
			itemIDs: ids,
			run: func(ctx context.Context) error {
				if action == workflow.ActionReject {
					_, err := s.poSvc.RejectPurchaseOrder(ctx, poNumber, req.Reason, actor)
					return err
				}
				_, err := s.poSvc.SignPurchaseOrder(ctx, poNumber, actor)
				return err
			},
		})
	}

	var wg sync.WaitGroup
	for _, p := range partitions {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.run(ctx); err != nil {
				fail(err.Error(), p.itemIDs...)
			} else {
				ok(p.itemIDs...)
			}
		}()
	}
	wg.Wait()

	return result, nil
}

// grantIntent 复核行项的批量许可授予：意向中的每个能力位逐一落账
func (s *BatchService) grantIntent(ctx context.Context, itemID string, intent workflow.Intent, actor Actor) error {
	caps := []struct {
		selected bool
		name     string
	}{
		{intent.DirectPO, "po"},
		{intent.DirectDelivery, "delivery"},
		{intent.Split, "split"},
	}
	for _, c := range caps {
		if !c.selected {
			continue
		}
		if _, err := s.requestSvc.GrantPermission(ctx, itemID, c.name, actor); err != nil {
			return err
		}
	}
	return nil
}

func intentEmpty(i workflow.Intent) bool {
	return !i.DirectPO && !i.DirectDelivery && !i.Split
}
