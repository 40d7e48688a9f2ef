package workflow

import (
	"github.com/bitfantasy/sitemat/internal/procure/entity"
)

// Role 动作执行者角色
type Role string

const (
	RoleSiteEngineer    Role = "site_engineer"
	RoleManager         Role = "manager"
	RolePurchaseOfficer Role = "purchase_officer"
)

// Action 行项流程动作
type Action string

const (
	ActionSend             Action = "send"
	ActionDelete           Action = "delete"
	ActionApprove          Action = "approve"
	ActionReject           Action = "reject"
	ActionRequestCC        Action = "request_cc"
	ActionOpenCC           Action = "open_cc"
	ActionApproveCC        Action = "approve_cc"
	ActionRejectCC         Action = "reject_cc"
	ActionResubmitCC       Action = "resubmit_cc"
	ActionMarkPO           Action = "mark_po"
	ActionDispatchDelivery Action = "dispatch_delivery"
	ActionDispatch         Action = "dispatch"
	ActionMarkDelivered    Action = "mark_delivered"
)

// Intent 审批时的路径意向（提交审批前为客户端临时选择，审批动作才落账）
type Intent struct {
	DirectPO       bool `json:"direct_po"`
	DirectDelivery bool `json:"direct_delivery"`
	Split          bool `json:"split"`
}

// Capability 意向对应的能力位
func (i Intent) Capability() Capability {
	var c Capability
	if i.DirectPO {
		c |= CapPO
	}
	if i.DirectDelivery {
		c |= CapDelivery
	}
	if i.Split {
		c |= CapSplit
	}
	return c
}

func (i Intent) isEmpty() bool {
	return !i.DirectPO && !i.DirectDelivery && !i.Split
}

// single 恰好选择了一个意向
func (i Intent) single() bool {
	n := 0
	if i.DirectPO {
		n++
	}
	if i.DirectDelivery {
		n++
	}
	if i.Split {
		n++
	}
	return n == 1
}

// Input 一次流程决策的全部输入
type Input struct {
	Status  string
	Action  Action
	Role    Role
	ActorID string

	CreatedBy string // 行项创建人（send/delete/mark_delivered校验用）
	Reason    string
	Intent    Intent
	Granted   Capability // 复核环节已授予的许可位

	MaterialName      string
	StockQuantity     float64 // 库存预言机读数（仅直发路径需要）
	RequestedQuantity float64
}

// Decision 决策结果。引擎是纯函数，持久化与副作用由service层执行。
type Decision struct {
	NextStatus string
	Deleted    bool

	Grant           Capability // 本次落账的许可位
	RejectionReason string     // 非空时写入驳回原因
	StampApproval   bool       // 记录approvedBy/approvedAt
	StampDelivery   bool       // 记录deliveryMarkedAt
}

// Decide 计算行项的下一状态。非法动作返回TransitionError，绝不静默忽略。
func Decide(in Input) (*Decision, error) {
	switch in.Action {
	case ActionSend:
		return decideSend(in)
	case ActionDelete:
		return decideDelete(in)
	case ActionApprove:
		return decideApprove(in)
	case ActionReject:
		return decideReject(in)
	case ActionRequestCC:
		return requireRole(in, RolePurchaseOfficer, entity.StatusApproved, entity.StatusReadyForCC)
	case ActionOpenCC:
		return requireRole(in, RoleManager, entity.StatusReadyForCC, entity.StatusCCPending)
	case ActionApproveCC:
		return requireRole(in, RoleManager, entity.StatusCCPending, entity.StatusReadyForPO)
	case ActionRejectCC:
		return decideRejectCC(in)
	case ActionResubmitCC:
		return requireRole(in, RoleManager, entity.StatusCCRejected, entity.StatusCCPending)
	case ActionMarkPO:
		return requireRole(in, RolePurchaseOfficer, entity.StatusReadyForPO, entity.StatusPendingPO)
	case ActionDispatchDelivery:
		return decideDispatchDelivery(in)
	case ActionDispatch:
		return requireRole(in, RolePurchaseOfficer, entity.StatusReadyForDelivery, entity.StatusOutForDelivery)
	case ActionMarkDelivered:
		return decideMarkDelivered(in)
	default:
		return nil, ErrInvalidTransition(in.Status, in.Action)
	}
}

func requireRole(in Input, role Role, from, to string) (*Decision, error) {
	if in.Status != from {
		return nil, ErrInvalidTransition(in.Status, in.Action)
	}
	if in.Role != role {
		return nil, ErrUnauthorized(in.Role, in.Action)
	}
	return &Decision{NextStatus: to}, nil
}

func decideSend(in Input) (*Decision, error) {
	if in.Status != entity.StatusDraft {
		return nil, ErrInvalidTransition(in.Status, in.Action)
	}
	if in.ActorID != in.CreatedBy {
		return nil, ErrUnauthorized(in.Role, in.Action)
	}
	return &Decision{NextStatus: entity.StatusPending}, nil
}

func decideDelete(in Input) (*Decision, error) {
	if in.Status != entity.StatusDraft {
		return nil, ErrInvalidTransition(in.Status, in.Action)
	}
	if in.ActorID != in.CreatedBy {
		return nil, ErrUnauthorized(in.Role, in.Action)
	}
	return &Decision{Deleted: true}, nil
}

func decideApprove(in Input) (*Decision, error) {
	if in.Status != entity.StatusPending {
		return nil, ErrInvalidTransition(in.Status, in.Action)
	}
	if in.Role != RoleManager {
		return nil, ErrUnauthorized(in.Role, in.Action)
	}

	// 无额外意向：普通批准
	if in.Intent.isEmpty() {
		return &Decision{NextStatus: entity.StatusApproved, StampApproval: true}, nil
	}

	// 单一直接下单意向
	if in.Intent.single() && in.Intent.DirectPO {
		return &Decision{
			NextStatus:    entity.StatusDirectPO,
			Grant:         CapPO,
			StampApproval: true,
		}, nil
	}

	// 单一直接发料意向：库存必须覆盖申请量，不足则整单拒绝而非降级
	if in.Intent.single() && in.Intent.DirectDelivery {
		if in.StockQuantity < in.RequestedQuantity {
			return nil, ErrInsufficientStock(in.MaterialName, in.StockQuantity, in.RequestedQuantity)
		}
		return &Decision{
			NextStatus:    entity.StatusDeliveryStage,
			Grant:         CapDelivery,
			StampApproval: true,
		}, nil
	}

	// 含split或复合意向：不猜测单一路径，转复核，逐项授予许可
	return &Decision{
		NextStatus:    entity.StatusRecheck,
		Grant:         in.Intent.Capability(),
		StampApproval: true,
	}, nil
}

func decideReject(in Input) (*Decision, error) {
	// PO签核中的行项必须走PO整单驳回，禁止单行驳回破坏PO一致性
	if in.Status == entity.StatusSignPending {
		return nil, newError(KindInvalidTransition,
			"item is inside a purchase order, reject the purchase order instead")
	}
	if in.Status != entity.StatusPending {
		return nil, ErrInvalidTransition(in.Status, in.Action)
	}
	if in.Role != RoleManager {
		return nil, ErrUnauthorized(in.Role, in.Action)
	}
	if in.Reason == "" {
		return nil, ErrMissingReason(in.Action)
	}
	return &Decision{NextStatus: entity.StatusRejected, RejectionReason: in.Reason}, nil
}

func decideRejectCC(in Input) (*Decision, error) {
	if in.Status != entity.StatusCCPending {
		return nil, ErrInvalidTransition(in.Status, in.Action)
	}
	if in.Role != RoleManager {
		return nil, ErrUnauthorized(in.Role, in.Action)
	}
	if in.Reason == "" {
		return nil, ErrMissingReason(in.Action)
	}
	return &Decision{NextStatus: entity.StatusCCRejected, RejectionReason: in.Reason}, nil
}

func decideDispatchDelivery(in Input) (*Decision, error) {
	if in.Status != entity.StatusRecheck {
		return nil, ErrInvalidTransition(in.Status, in.Action)
	}
	if in.Role != RoleManager {
		return nil, ErrUnauthorized(in.Role, in.Action)
	}
	if !in.Granted.Has(CapDelivery) {
		return nil, newError(KindInvalidTransition, "delivery permission not granted for this item")
	}
	if in.StockQuantity < in.RequestedQuantity {
		return nil, ErrInsufficientStock(in.MaterialName, in.StockQuantity, in.RequestedQuantity)
	}
	return &Decision{NextStatus: entity.StatusDeliveryStage}, nil
}

func decideMarkDelivered(in Input) (*Decision, error) {
	if in.Status != entity.StatusDeliveryStage && in.Status != entity.StatusOutForDelivery {
		return nil, ErrInvalidTransition(in.Status, in.Action)
	}
	if in.ActorID != in.CreatedBy {
		return nil, ErrUnauthorized(in.Role, in.Action)
	}
	return &Decision{NextStatus: entity.StatusDelivered, StampDelivery: true}, nil
}

// CanCreatePO 判断行项能否进入PO。复核中的行项需已授予po许可。
func CanCreatePO(status string, granted Capability) error {
	switch status {
	case entity.StatusReadyForPO, entity.StatusPendingPO, entity.StatusDirectPO, entity.StatusCCApproved:
		return nil
	case entity.StatusRecheck:
		if granted.Has(CapPO) {
			return nil
		}
		return newError(KindInvalidTransition, "po permission not granted for this item")
	default:
		return newError(KindInvalidTransition, "cannot create purchase order from status %q", status)
	}
}

// DecideGrant 复核许可授予。重复授予幂等：already=true且不产生写入。
func DecideGrant(status string, granted, bit Capability, role Role) (Capability, bool, error) {
	if role != RoleManager {
		return granted, false, ErrUnauthorized(role, "grant_permission")
	}
	if status != entity.StatusRecheck {
		return granted, false, newError(KindInvalidTransition,
			"permissions may only be granted during recheck, item is %q", status)
	}
	if granted.Has(bit) {
		return granted, true, nil
	}
	return granted | bit, false, nil
}
