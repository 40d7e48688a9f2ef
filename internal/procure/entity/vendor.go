package entity

import "time"

// Vendor 供应商
type Vendor struct {
	ID      string `json:"id" gorm:"primaryKey;size:32"`
	Code    string `json:"code" gorm:"size:32;uniqueIndex;not null"`
	Name    string `json:"name" gorm:"size:200;not null"`
	Contact string `json:"contact" gorm:"size:100"`
	Phone   string `json:"phone" gorm:"size:50"`
	Address string `json:"address" gorm:"size:500"`
	Status  string `json:"status" gorm:"size:20;default:active"`

	CreatedBy string    `json:"created_by" gorm:"size:32"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Vendor) TableName() string {
	return "procure_vendors"
}

const (
	VendorStatusActive   = "active"
	VendorStatusDisabled = "disabled"
)
