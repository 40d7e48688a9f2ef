package handler

import (
	"github.com/bitfantasy/sitemat/internal/procure/service"
	"github.com/gin-gonic/gin"
)

// VendorHandler 供应商处理器
type VendorHandler struct {
	vendorSvc *service.VendorService
}

func NewVendorHandler(vendorSvc *service.VendorService) *VendorHandler {
	return &VendorHandler{vendorSvc: vendorSvc}
}

// Create 创建供应商
// POST /api/v1/vendors
func (h *VendorHandler) Create(c *gin.Context) {
	var req service.CreateVendorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	vendor, err := h.vendorSvc.Create(c.Request.Context(), GetUserID(c), &req)
	if err != nil {
		InternalError(c, "创建供应商失败: "+err.Error())
		return
	}
	Created(c, vendor)
}

// Get 供应商详情
// GET /api/v1/vendors/:id
func (h *VendorHandler) Get(c *gin.Context) {
	vendor, err := h.vendorSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, vendor)
}

// List 供应商列表
// GET /api/v1/vendors
func (h *VendorHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)

	filters := make(map[string]string)
	if status := c.Query("status"); status != "" {
		filters["status"] = status
	}
	if search := c.Query("search"); search != "" {
		filters["search"] = search
	}

	vendors, total, err := h.vendorSvc.List(c.Request.Context(), page, pageSize, filters)
	if err != nil {
		InternalError(c, "查询供应商列表失败: "+err.Error())
		return
	}

	Success(c, ListResponse{
		Items: vendors,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      int(total),
			TotalPages: int((total + int64(pageSize) - 1) / int64(pageSize)),
		},
	})
}
