package handler

import (
	"github.com/bitfantasy/sitemat/internal/procure/service"
	"github.com/gin-gonic/gin"
)

// POHandler 采购订单处理器
type POHandler struct {
	poSvc *service.POService
}

func NewPOHandler(poSvc *service.POService) *POHandler {
	return &POHandler{poSvc: poSvc}
}

// Create 创建采购订单
// POST /api/v1/purchase-orders
func (h *POHandler) Create(c *gin.Context) {
	var req service.CreatePORequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	po, err := h.poSvc.CreatePurchaseOrder(c.Request.Context(), GetUserID(c), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, po)
}

// Get PO详情
// GET /api/v1/purchase-orders/:number
func (h *POHandler) Get(c *gin.Context) {
	po, err := h.poSvc.GetPO(c.Request.Context(), c.Param("number"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, po)
}

// List PO列表
// GET /api/v1/purchase-orders
func (h *POHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)

	filters := make(map[string]string)
	if signStatus := c.Query("sign_status"); signStatus != "" {
		filters["sign_status"] = signStatus
	}
	if vendorID := c.Query("vendor_id"); vendorID != "" {
		filters["vendor_id"] = vendorID
	}

	pos, total, err := h.poSvc.ListPOs(c.Request.Context(), page, pageSize, filters)
	if err != nil {
		InternalError(c, "查询PO列表失败: "+err.Error())
		return
	}

	Success(c, ListResponse{
		Items: pos,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      int(total),
			TotalPages: int((total + int64(pageSize) - 1) / int64(pageSize)),
		},
	})
}

// Sign 签核PO（整单生效）
// POST /api/v1/purchase-orders/:number/sign
func (h *POHandler) Sign(c *gin.Context) {
	po, err := h.poSvc.SignPurchaseOrder(c.Request.Context(), c.Param("number"), GetActor(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, po)
}

// rejectPORequest 驳回请求体
type rejectPORequest struct {
	Reason string `json:"reason" binding:"required"`
}

// Reject 驳回PO（首次驳回可整改，再次驳回关单）
// POST /api/v1/purchase-orders/:number/reject
func (h *POHandler) Reject(c *gin.Context) {
	var req rejectPORequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "驳回必须填写原因")
		return
	}

	po, err := h.poSvc.RejectPurchaseOrder(c.Request.Context(), c.Param("number"), req.Reason, GetActor(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, po)
}
