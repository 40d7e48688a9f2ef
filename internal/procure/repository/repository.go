package repository

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrStale 条件更新未命中：期望的前置状态已被并发修改
	ErrStale = errors.New("stale update: expected state changed")
)

// Repositories 采购仓库集合
type Repositories struct {
	Request   *RequestRepository
	PO        *PORepository
	Vendor    *VendorRepository
	Inventory *InventoryRepository
	User      *UserRepository
}

// NewRepositories 创建仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Request:   NewRequestRepository(db),
		PO:        NewPORepository(db),
		Vendor:    NewVendorRepository(db),
		Inventory: NewInventoryRepository(db),
		User:      NewUserRepository(db),
	}
}
