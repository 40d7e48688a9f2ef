package handler

import (
	"github.com/bitfantasy/sitemat/internal/procure/service"
	"github.com/gin-gonic/gin"
)

// InventoryHandler 库存处理器
type InventoryHandler struct {
	inventorySvc *service.InventoryService
}

func NewInventoryHandler(inventorySvc *service.InventoryService) *InventoryHandler {
	return &InventoryHandler{inventorySvc: inventorySvc}
}

// Get 物料库存读数
// GET /api/v1/inventory/:material
func (h *InventoryHandler) Get(c *gin.Context) {
	material := c.Param("material")
	quantity, unit, err := h.inventorySvc.StockFor(c.Request.Context(), material)
	if err != nil {
		InternalError(c, "读取库存失败: "+err.Error())
		return
	}
	Success(c, gin.H{
		"material_name": material,
		"quantity":      quantity,
		"unit":          unit,
	})
}

// List 库存列表
// GET /api/v1/inventory
func (h *InventoryHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)

	records, total, err := h.inventorySvc.List(c.Request.Context(), page, pageSize)
	if err != nil {
		InternalError(c, "查询库存列表失败: "+err.Error())
		return
	}

	Success(c, ListResponse{
		Items: records,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      int(total),
			TotalPages: int((total + int64(pageSize) - 1) / int64(pageSize)),
		},
	})
}

// Upsert 写入库存读数（外部库存系统同步）
// PUT /api/v1/inventory
func (h *InventoryHandler) Upsert(c *gin.Context) {
	var req service.UpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	rec, err := h.inventorySvc.Upsert(c.Request.Context(), &req)
	if err != nil {
		InternalError(c, "写入库存失败: "+err.Error())
		return
	}
	Success(c, rec)
}
