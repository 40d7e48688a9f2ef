package handler

import (
	"fmt"

	"github.com/bitfantasy/sitemat/internal/procure/service"
	"github.com/bitfantasy/sitemat/internal/procure/workflow"
	"github.com/gin-gonic/gin"
)

// RequestHandler 物资申请处理器
type RequestHandler struct {
	requestSvc *service.RequestService
	batchSvc   *service.BatchService
	exportSvc  *service.ExportService
}

func NewRequestHandler(requestSvc *service.RequestService, batchSvc *service.BatchService, exportSvc *service.ExportService) *RequestHandler {
	return &RequestHandler{
		requestSvc: requestSvc,
		batchSvc:   batchSvc,
		exportSvc:  exportSvc,
	}
}

// Submit 创建申请组
// POST /api/v1/requests
func (h *RequestHandler) Submit(c *gin.Context) {
	var req service.SubmitGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	view, err := h.requestSvc.SubmitGroup(c.Request.Context(), GetUserID(c), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, view)
}

// Send 草稿组整体送审
// POST /api/v1/requests/:number/send
func (h *RequestHandler) Send(c *gin.Context) {
	view, err := h.requestSvc.SendGroup(c.Request.Context(), c.Param("number"), GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, view)
}

// List 申请组列表
// GET /api/v1/requests
func (h *RequestHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)

	filters := make(map[string]string)
	if status := c.Query("status"); status != "" {
		filters["status"] = status
	}
	if createdBy := c.Query("created_by"); createdBy != "" {
		filters["created_by"] = createdBy
	}
	if search := c.Query("search"); search != "" {
		filters["search"] = search
	}

	views, total, err := h.requestSvc.ListGroups(c.Request.Context(), page, pageSize, filters)
	if err != nil {
		InternalError(c, "查询申请组列表失败: "+err.Error())
		return
	}

	Success(c, ListResponse{
		Items: views,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      int(total),
			TotalPages: int((total + int64(pageSize) - 1) / int64(pageSize)),
		},
	})
}

// Get 申请组详情（含派生组状态）
// GET /api/v1/requests/:number
func (h *RequestHandler) Get(c *gin.Context) {
	view, err := h.requestSvc.GetGroupView(c.Request.Context(), c.Param("number"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, view)
}

// transitionRequest 行项流转请求体
type transitionRequest struct {
	Action string          `json:"action" binding:"required"`
	Reason string          `json:"reason"`
	Intent workflow.Intent `json:"intent"`
}

// Transition 单行项流转
// POST /api/v1/requests/items/:id/transition
func (h *RequestHandler) Transition(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	item, err := h.requestSvc.Transition(c.Request.Context(), c.Param("id"),
		workflow.Action(req.Action), GetActor(c), service.TransitionPayload{
			Reason: req.Reason,
			Intent: req.Intent,
		})
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, item)
}

// grantRequest 许可授予请求体
type grantRequest struct {
	Capability string `json:"capability" binding:"required"`
}

// GrantPermission 复核许可授予（po/delivery/split，幂等）
// POST /api/v1/requests/items/:id/permissions
func (h *RequestHandler) GrantPermission(c *gin.Context) {
	var req grantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	item, err := h.requestSvc.GrantPermission(c.Request.Context(), c.Param("id"), req.Capability, GetActor(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, item)
}

// MarkDelivered 创建人签收
// POST /api/v1/requests/items/:id/delivered
func (h *RequestHandler) MarkDelivered(c *gin.Context) {
	item, err := h.requestSvc.MarkDelivered(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, item)
}

// DeleteDraft 删除草稿行项
// DELETE /api/v1/requests/items/:id
func (h *RequestHandler) DeleteDraft(c *gin.Context) {
	if err := h.requestSvc.DeleteDraftItem(c.Request.Context(), c.Param("id"), GetUserID(c)); err != nil {
		RespondError(c, err)
		return
	}
	Success(c, nil)
}

// Batch 批量流转
// POST /api/v1/requests/batch
func (h *RequestHandler) Batch(c *gin.Context) {
	var req service.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.batchSvc.BatchTransition(c.Request.Context(), &req, GetActor(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, result)
}

// Export 导出申请组为Excel
// GET /api/v1/requests/:number/export
func (h *RequestHandler) Export(c *gin.Context) {
	number := c.Param("number")
	f, err := h.exportSvc.ExportGroup(c.Request.Context(), number)
	if err != nil {
		RespondError(c, err)
		return
	}
	defer f.Close()

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.xlsx"`, number))
	if err := f.Write(c.Writer); err != nil {
		InternalError(c, "导出失败: "+err.Error())
	}
}
