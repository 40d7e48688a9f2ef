package entity

import "time"

// PurchaseOrder 采购订单（按供应商聚合若干申请行项，整单签核）
type PurchaseOrder struct {
	ID       string `json:"id" gorm:"primaryKey;size:32"`
	PONumber string `json:"po_number" gorm:"size:32;uniqueIndex;not null"`
	VendorID string `json:"vendor_id" gorm:"size:32;not null;index"`

	// 签核状态放在单头，行项不单独存储，杜绝"半签"状态
	SignStatus   string  `json:"sign_status" gorm:"size:20;not null;default:sign_pending"`
	RejectReason string  `json:"reject_reason" gorm:"type:text"`
	TotalAmount  float64 `json:"total_amount" gorm:"type:decimal(15,2);default:0"`
	Currency     string  `json:"currency" gorm:"size:10;default:CNY"`

	// 管理
	CreatedBy string     `json:"created_by" gorm:"size:32"`
	SignedBy  *string    `json:"signed_by" gorm:"size:32"`
	SignedAt  *time.Time `json:"signed_at"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	// 关联
	Lines  []POLine `json:"lines,omitempty" gorm:"foreignKey:PONumber;references:PONumber"`
	Vendor *Vendor  `json:"vendor,omitempty" gorm:"foreignKey:VendorID"`
}

func (PurchaseOrder) TableName() string {
	return "procure_purchase_orders"
}

// PO签核状态
const (
	POSignPending    = "sign_pending"
	POSignRejected   = "sign_rejected"
	POSigned         = "signed"
	POClosedRejected = "closed_rejected"
)

// POLine PO行项（下单时刻的申请行项快照）
type POLine struct {
	ID            string  `json:"id" gorm:"primaryKey;size:32"`
	PONumber      string  `json:"po_number" gorm:"size:32;not null;index"`
	RequestItemID string  `json:"request_item_id" gorm:"size:32;not null;index"`
	MaterialName  string  `json:"material_name" gorm:"size:200;not null"`
	Quantity      float64 `json:"quantity" gorm:"type:decimal(12,2);not null"`
	Unit          string  `json:"unit" gorm:"size:20;default:pcs"`
	UnitPrice     float64 `json:"unit_price" gorm:"type:decimal(12,4);not null"`
	LineTotal     float64 `json:"line_total" gorm:"type:decimal(15,2);not null"`

	SortOrder int       `json:"sort_order" gorm:"default:0"`
	CreatedAt time.Time `json:"created_at"`
}

func (POLine) TableName() string {
	return "procure_po_lines"
}
