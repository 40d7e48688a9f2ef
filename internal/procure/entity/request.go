package entity

import "time"

// RequestItem 物资申请行项（同一request_number下的多行构成一个申请组）
type RequestItem struct {
	ID            string `json:"id" gorm:"primaryKey;size:32"`
	RequestNumber string `json:"request_number" gorm:"size:32;not null;index"`
	ItemOrder     int    `json:"item_order" gorm:"not null;default:1"`

	// 物料信息
	MaterialName  string     `json:"material_name" gorm:"size:200;not null"`
	Quantity      float64    `json:"quantity" gorm:"type:decimal(12,2);not null"`
	Unit          string     `json:"unit" gorm:"size:20;default:pcs"`
	Description   string     `json:"description" gorm:"type:text"`
	Specification string     `json:"specification" gorm:"size:500"`
	Urgent        bool       `json:"urgent" gorm:"default:false"`
	RequiredDate  *time.Time `json:"required_date"`

	// 流程状态
	Status          string `json:"status" gorm:"size:20;not null;default:draft;index"`
	RejectionReason string `json:"rejection_reason" gorm:"type:text"`

	// 复核许可（一经授予不可撤销）
	DirectAction    string `json:"direct_action" gorm:"size:20"`
	IsSplitApproved bool   `json:"is_split_approved" gorm:"default:false"`

	// PO关联（进入签核流程后写入）
	PONumber *string `json:"po_number" gorm:"size:32;index"`

	// 管理
	CreatedBy        string     `json:"created_by" gorm:"size:32;not null;index"`
	ApprovedBy       *string    `json:"approved_by" gorm:"size:32"`
	ApprovedAt       *time.Time `json:"approved_at"`
	DeliveryMarkedAt *time.Time `json:"delivery_marked_at"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (RequestItem) TableName() string {
	return "procure_request_items"
}

// 行项状态
const (
	StatusDraft            = "draft"
	StatusPending          = "pending"
	StatusApproved         = "approved"
	StatusRejected         = "rejected"
	StatusRecheck          = "recheck"
	StatusReadyForCC       = "ready_for_cc"
	StatusCCPending        = "cc_pending"
	StatusCCApproved       = "cc_approved"
	StatusCCRejected       = "cc_rejected"
	StatusReadyForPO       = "ready_for_po"
	StatusPendingPO        = "pending_po"
	StatusSignPending      = "sign_pending"
	StatusSignRejected     = "sign_rejected"
	StatusRejectedPO       = "rejected_po"
	StatusDirectPO         = "direct_po"
	StatusDeliveryStage    = "delivery_stage"
	StatusReadyForDelivery = "ready_for_delivery"
	StatusOutForDelivery   = "out_for_delivery"
	StatusDelivered        = "delivered"
)

// GroupStatusPartial 申请组派生状态（仅组级别，行项永不存储此值）
const GroupStatusPartial = "partially_processed"

// RejectedStatuses 需要携带驳回原因的状态集合
var RejectedStatuses = map[string]bool{
	StatusRejected:     true,
	StatusSignRejected: true,
	StatusCCRejected:   true,
	StatusRejectedPO:   true,
}

// IsRejectedStatus 判断状态是否为驳回类状态
func IsRejectedStatus(status string) bool {
	return RejectedStatuses[status]
}

// undecided 行项尚未离开申报阶段
func undecided(status string) bool {
	return status == StatusDraft || status == StatusPending
}

// DeriveGroupStatus 派生申请组状态：
// 全部行项仍在draft/pending → 空串（未定）；
// 全部行项同一状态 → 该状态；
// 其余 → partially_processed。
func DeriveGroupStatus(items []RequestItem) string {
	if len(items) == 0 {
		return ""
	}

	allUndecided := true
	for _, it := range items {
		if !undecided(it.Status) {
			allUndecided = false
			break
		}
	}
	if allUndecided {
		return ""
	}

	first := items[0].Status
	for _, it := range items[1:] {
		if it.Status != first {
			return GroupStatusPartial
		}
	}
	return first
}
