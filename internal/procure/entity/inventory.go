package entity

import "time"

// InventoryRecord 现场库存记录。流程引擎只读库存用于路径判定（直发判断），
// 出入库由外部库存系统维护。
type InventoryRecord struct {
	ID           string    `json:"id" gorm:"primaryKey;size:32"`
	MaterialName string    `json:"material_name" gorm:"size:200;uniqueIndex;not null"`
	Quantity     float64   `json:"quantity" gorm:"type:decimal(12,2);not null;default:0"`
	Unit         string    `json:"unit" gorm:"size:20;default:pcs"`
	UpdatedAt    time.Time `json:"updated_at"`
	CreatedAt    time.Time `json:"created_at"`
}

func (InventoryRecord) TableName() string {
	return "procure_inventory"
}
