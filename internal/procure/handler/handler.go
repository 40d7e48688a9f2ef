package handler

import (
	"errors"
	"strconv"

	"github.com/bitfantasy/sitemat/internal/procure/repository"
	"github.com/bitfantasy/sitemat/internal/procure/service"
	"github.com/bitfantasy/sitemat/internal/procure/workflow"
	"github.com/gin-gonic/gin"
)

// Handlers 采购处理器集合
type Handlers struct {
	Request   *RequestHandler
	PO        *POHandler
	Inventory *InventoryHandler
	Vendor    *VendorHandler
}

// NewHandlers 创建采购处理器集合
func NewHandlers(svcs *service.Services) *Handlers {
	return &Handlers{
		Request:   NewRequestHandler(svcs.Request, svcs.Batch, svcs.Export),
		PO:        NewPOHandler(svcs.PO),
		Inventory: NewInventoryHandler(svcs.Inventory),
		Vendor:    NewVendorHandler(svcs.Vendor),
	}
}

// === 响应辅助函数 ===

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type ListResponse struct {
	Items      interface{} `json:"items"`
	Pagination *Pagination `json:"pagination"`
}

type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

func Forbidden(c *gin.Context, message string) {
	Error(c, 40300, message)
}

func Conflict(c *gin.Context, message string) {
	Error(c, 40900, message)
}

func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

// GetActor 从认证上下文取执行者身份与角色
func GetActor(c *gin.Context) service.Actor {
	actor := service.Actor{ID: GetUserID(c)}
	if role, ok := c.Get("role"); ok {
		if r, ok := role.(string); ok {
			actor.Role = workflow.Role(r)
		}
	}
	return actor
}

func GetPagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}

	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}

	return page, pageSize
}

// RespondError 按错误类别映射HTTP状态
func RespondError(c *gin.Context, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		NotFound(c, err.Error())
		return
	}
	switch workflow.KindOf(err) {
	case workflow.KindUnauthorized:
		Forbidden(c, err.Error())
	case workflow.KindConflict:
		Conflict(c, err.Error())
	case workflow.KindInvalidTransition,
		workflow.KindMissingReason,
		workflow.KindPermissionGranted,
		workflow.KindInsufficientStock:
		BadRequest(c, err.Error())
	default:
		InternalError(c, err.Error())
	}
}
