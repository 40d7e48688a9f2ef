package service

import (
	"github.com/bitfantasy/sitemat/internal/procure/repository"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Services 采购服务集合
type Services struct {
	Request   *RequestService
	Batch     *BatchService
	PO        *POService
	Inventory *InventoryService
	Vendor    *VendorService
	Export    *ExportService
}

// NewServices 创建服务集合
func NewServices(repos *repository.Repositories, rdb *redis.Client, db *gorm.DB) *Services {
	inventorySvc := NewInventoryService(repos.Inventory, rdb)
	requestSvc := NewRequestService(repos.Request, repos.User, inventorySvc, rdb)
	poSvc := NewPOService(repos.PO, repos.Request, repos.Vendor, db, rdb)
	batchSvc := NewBatchService(requestSvc, poSvc, repos.Request)
	vendorSvc := NewVendorService(repos.Vendor)
	exportSvc := NewExportService(repos.Request)

	return &Services{
		Request:   requestSvc,
		Batch:     batchSvc,
		PO:        poSvc,
		Inventory: inventorySvc,
		Vendor:    vendorSvc,
		Export:    exportSvc,
	}
}
