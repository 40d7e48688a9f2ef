package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/bitfantasy/sitemat/internal/middleware"
	"github.com/bitfantasy/sitemat/internal/procure/entity"
	"github.com/bitfantasy/sitemat/internal/procure/repository"
	"github.com/bitfantasy/sitemat/internal/procure/service"
	"github.com/bitfantasy/sitemat/internal/procure/testutil"
	"github.com/bitfantasy/sitemat/internal/procure/workflow"
)

func setupProcureTest(t *testing.T) *testutil.TestEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)

	repos := repository.NewRepositories(db)
	svcs := service.NewServices(repos, nil, db)
	handlers := NewHandlers(svcs)

	router := testutil.SetupRouter()
	api := testutil.AuthGroup(router, "/api/v1")

	requests := api.Group("/requests")
	requests.POST("", handlers.Request.Submit)
	requests.GET("", handlers.Request.List)
	requests.POST("/batch", handlers.Request.Batch)
	requests.GET("/:number", handlers.Request.Get)
	requests.POST("/:number/send", handlers.Request.Send)
	requests.POST("/items/:id/transition", handlers.Request.Transition)
	requests.POST("/items/:id/permissions", handlers.Request.GrantPermission)
	requests.POST("/items/:id/delivered", handlers.Request.MarkDelivered)
	requests.DELETE("/items/:id", handlers.Request.DeleteDraft)

	pos := api.Group("/purchase-orders")
	pos.POST("", handlers.PO.Create)
	pos.GET("/:number", handlers.PO.Get)
	pos.POST("/:number/sign", handlers.PO.Sign)
	pos.POST("/:number/reject", handlers.PO.Reject)

	inventory := api.Group("/inventory")
	inventory.GET("/:material", handlers.Inventory.Get)
	inventory.PUT("", middleware.RequireRole(entity.RolePurchaseOfficer), handlers.Inventory.Upsert)

	return &testutil.TestEnv{DB: db, Router: router, T: t}
}

// submitGroup 提交一个申请组并返回组号与按顺序排列的行项ID
func submitGroup(t *testing.T, env *testutil.TestEnv, token string, submit bool, materials ...string) (string, []string) {
	t.Helper()

	items := make([]map[string]interface{}, 0, len(materials))
	for _, m := range materials {
		items = append(items, map[string]interface{}{
			"material_name": m,
			"quantity":      10,
			"unit":          "pcs",
		})
	}
	body := map[string]interface{}{"submit": submit, "items": items}

	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/requests", body, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 on submit, got %d: %s", w.Code, w.Body.String())
	}

	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	number := data["request_number"].(string)

	ids := make([]string, 0, len(materials))
	for _, raw := range data["items"].([]interface{}) {
		item := raw.(map[string]interface{})
		ids = append(ids, item["id"].(string))
	}
	return number, ids
}

func transition(t *testing.T, env *testutil.TestEnv, token, itemID, action string, extra map[string]interface{}) *map[string]interface{} {
	t.Helper()
	body := map[string]interface{}{"action": action}
	for k, v := range extra {
		body[k] = v
	}
	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/requests/items/"+itemID+"/transition", body, token)
	if w.Code != http.StatusOK {
		t.Fatalf("transition %s expected 200, got %d: %s", action, w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	return &data
}

func itemStatus(t *testing.T, env *testutil.TestEnv, itemID string) string {
	t.Helper()
	var item entity.RequestItem
	if err := env.DB.First(&item, "id = ?", itemID).Error; err != nil {
		t.Fatalf("load item %s: %v", itemID, err)
	}
	return item.Status
}

// 完整正向流程：提交 → 批准(direct_po) → 下PO → 签核 → 发货 → 签收
func TestRequestLifecycleDirectPO(t *testing.T) {
	env := setupProcureTest(t)
	engToken := testutil.EngineerToken("eng-001")
	mgrToken := testutil.ManagerToken("mgr-001")
	poToken := testutil.PurchaseOfficerToken("po-001")

	testutil.SeedTestVendor(t, env.DB, "vendor-001", "V-001", "钢材供应商A")

	_, ids := submitGroup(t, env, engToken, true, "螺纹钢")
	itemID := ids[0]

	// 经理批准并授予直接下单
	data := transition(t, env, mgrToken, itemID, "approve", map[string]interface{}{
		"intent": map[string]bool{"direct_po": true},
	})
	if (*data)["status"] != entity.StatusDirectPO {
		t.Fatalf("expected direct_po, got %v", (*data)["status"])
	}
	if (*data)["direct_action"] != "po" {
		t.Fatalf("expected direct_action po, got %v", (*data)["direct_action"])
	}

	// 下采购订单
	poBody := map[string]interface{}{
		"vendor_id": "vendor-001",
		"lines": []map[string]interface{}{
			{"request_item_id": itemID, "unit_price": 4.5},
		},
	}
	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/purchase-orders", poBody, poToken)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 on PO create, got %d: %s", w.Code, w.Body.String())
	}
	poData := testutil.ParseResponse(w)["data"].(map[string]interface{})
	poNumber := poData["po_number"].(string)
	if got := itemStatus(t, env, itemID); got != entity.StatusSignPending {
		t.Fatalf("expected sign_pending after PO create, got %s", got)
	}

	// 签核中的行项禁止单行驳回
	w = testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/requests/items/"+itemID+"/transition",
		map[string]interface{}{"action": "reject", "reason": "too expensive"}, mgrToken)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for single-item reject inside PO, got %d", w.Code)
	}

	// 经理整单签核
	w = testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/purchase-orders/"+poNumber+"/sign", nil, mgrToken)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on sign, got %d: %s", w.Code, w.Body.String())
	}
	if got := itemStatus(t, env, itemID); got != entity.StatusReadyForDelivery {
		t.Fatalf("expected ready_for_delivery after sign, got %s", got)
	}

	// 采购员安排发货
	transition(t, env, poToken, itemID, "dispatch", nil)
	if got := itemStatus(t, env, itemID); got != entity.StatusOutForDelivery {
		t.Fatalf("expected out_for_delivery, got %s", got)
	}

	// 创建人签收
	w = testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/requests/items/"+itemID+"/delivered", nil, engToken)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on delivered, got %d: %s", w.Code, w.Body.String())
	}
	if got := itemStatus(t, env, itemID); got != entity.StatusDelivered {
		t.Fatalf("expected delivered, got %s", got)
	}
}

// PO两次驳回：首次可整改，再次关单且行项进入终态
func TestPurchaseOrderDoubleReject(t *testing.T) {
	env := setupProcureTest(t)
	engToken := testutil.EngineerToken("eng-002")
	mgrToken := testutil.ManagerToken("mgr-001")
	poToken := testutil.PurchaseOfficerToken("po-001")

	testutil.SeedTestVendor(t, env.DB, "vendor-002", "V-002", "水泥供应商B")

	_, ids := submitGroup(t, env, engToken, true, "硅酸盐水泥")
	itemID := ids[0]
	transition(t, env, mgrToken, itemID, "approve", map[string]interface{}{
		"intent": map[string]bool{"direct_po": true},
	})

	poBody := map[string]interface{}{
		"vendor_id": "vendor-002",
		"lines": []map[string]interface{}{
			{"request_item_id": itemID, "unit_price": 28},
		},
	}
	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/purchase-orders", poBody, poToken)
	if w.Code != http.StatusCreated {
		t.Fatalf("PO create failed: %d %s", w.Code, w.Body.String())
	}
	poNumber := testutil.ParseResponse(w)["data"].(map[string]interface{})["po_number"].(string)

	// 驳回必须有原因
	w = testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/purchase-orders/"+poNumber+"/reject",
		map[string]interface{}{}, mgrToken)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing reason, got %d", w.Code)
	}

	// 首次驳回
	w = testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/purchase-orders/"+poNumber+"/reject",
		map[string]interface{}{"reason": "单价高于市场价"}, mgrToken)
	if w.Code != http.StatusOK {
		t.Fatalf("first reject failed: %d %s", w.Code, w.Body.String())
	}
	po := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if po["sign_status"] != entity.POSignRejected {
		t.Fatalf("expected sign_rejected header, got %v", po["sign_status"])
	}
	if got := itemStatus(t, env, itemID); got != entity.StatusSignRejected {
		t.Fatalf("expected item sign_rejected, got %s", got)
	}

	// 再次驳回：关单，行项进入终态
	w = testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/purchase-orders/"+poNumber+"/reject",
		map[string]interface{}{"reason": "供应商整改未通过"}, mgrToken)
	if w.Code != http.StatusOK {
		t.Fatalf("second reject failed: %d %s", w.Code, w.Body.String())
	}
	po = testutil.ParseResponse(w)["data"].(map[string]interface{})
	if po["sign_status"] != entity.POClosedRejected {
		t.Fatalf("expected closed_rejected header, got %v", po["sign_status"])
	}
	if got := itemStatus(t, env, itemID); got != entity.StatusRejectedPO {
		t.Fatalf("expected item rejected_po, got %s", got)
	}

	// 采购员不能签核
	w = testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/purchase-orders/"+poNumber+"/sign", nil, poToken)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-manager sign, got %d", w.Code)
	}
}

// 库存守卫：直接发料意向在库存不足时整单拒绝
func TestApproveDirectDeliveryInsufficientStock(t *testing.T) {
	env := setupProcureTest(t)
	engToken := testutil.EngineerToken("eng-003")
	mgrToken := testutil.ManagerToken("mgr-001")

	testutil.SeedStock(t, env.DB, "stock-001", "PVC管", 5)

	_, ids := submitGroup(t, env, engToken, true, "PVC管")
	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/requests/items/"+ids[0]+"/transition",
		map[string]interface{}{
			"action": "approve",
			"intent": map[string]bool{"direct_delivery": true},
		}, mgrToken)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for insufficient stock, got %d: %s", w.Code, w.Body.String())
	}
	if got := itemStatus(t, env, ids[0]); got != entity.StatusPending {
		t.Fatalf("item should stay pending, got %s", got)
	}

	// 未登记物料按零库存处理
	_, ids2 := submitGroup(t, env, engToken, true, "不存在的物料")
	w = testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/requests/items/"+ids2[0]+"/transition",
		map[string]interface{}{
			"action": "approve",
			"intent": map[string]bool{"direct_delivery": true},
		}, mgrToken)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown material, got %d", w.Code)
	}
}

// 复核流程：复合意向转复核，逐项授予许可后走对应后续动作
func TestRecheckGrantFlow(t *testing.T) {
	env := setupProcureTest(t)
	engToken := testutil.EngineerToken("eng-004")
	mgrToken := testutil.ManagerToken("mgr-001")

	testutil.SeedStock(t, env.DB, "stock-002", "电缆", 100)

	_, ids := submitGroup(t, env, engToken, true, "电缆")
	itemID := ids[0]

	data := transition(t, env, mgrToken, itemID, "approve", map[string]interface{}{
		"intent": map[string]bool{"direct_delivery": true, "split": true},
	})
	if (*data)["status"] != entity.StatusRecheck {
		t.Fatalf("compound intent should land in recheck, got %v", (*data)["status"])
	}

	// 非经理不能授予许可
	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/requests/items/"+itemID+"/permissions",
		map[string]interface{}{"capability": "po"}, engToken)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-manager grant, got %d", w.Code)
	}

	// 重复授予幂等
	w = testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/requests/items/"+itemID+"/permissions",
		map[string]interface{}{"capability": "delivery"}, mgrToken)
	if w.Code != http.StatusOK {
		t.Fatalf("repeat grant should be idempotent, got %d: %s", w.Code, w.Body.String())
	}

	// 复核中发料（许可已授予且库存充足）
	transition(t, env, mgrToken, itemID, "dispatch_delivery", nil)
	if got := itemStatus(t, env, itemID); got != entity.StatusDeliveryStage {
		t.Fatalf("expected delivery_stage, got %s", got)
	}
}

// 组状态派生：部分行项推进后组状态为partially_processed
func TestGroupViewDerivedStatus(t *testing.T) {
	env := setupProcureTest(t)
	engToken := testutil.EngineerToken("eng-005")
	mgrToken := testutil.ManagerToken("mgr-001")

	number, ids := submitGroup(t, env, engToken, true, "沙子", "砖块")

	// 初始：全部pending → 组状态未定
	w := testutil.DoRequest(env.Router, http.MethodGet, "/api/v1/requests/"+number, nil, engToken)
	if w.Code != http.StatusOK {
		t.Fatalf("group view failed: %d", w.Code)
	}
	view := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if status, ok := view["status"].(string); ok && status != "" {
		t.Fatalf("expected empty group status, got %q", status)
	}

	// 批准第一项
	transition(t, env, mgrToken, ids[0], "approve", nil)

	w = testutil.DoRequest(env.Router, http.MethodGet, "/api/v1/requests/"+number, nil, engToken)
	view = testutil.ParseResponse(w)["data"].(map[string]interface{})
	if view["status"] != entity.GroupStatusPartial {
		t.Fatalf("expected partially_processed, got %v", view["status"])
	}

	// 批准第二项 → 全部approved → 组状态approved
	transition(t, env, mgrToken, ids[1], "approve", nil)

	w = testutil.DoRequest(env.Router, http.MethodGet, "/api/v1/requests/"+number, nil, engToken)
	view = testutil.ParseResponse(w)["data"].(map[string]interface{})
	if view["status"] != entity.StatusApproved {
		t.Fatalf("expected approved, got %v", view["status"])
	}
}

// 草稿流程：保存草稿、送审、删除
func TestDraftSendAndDelete(t *testing.T) {
	env := setupProcureTest(t)
	engToken := testutil.EngineerToken("eng-006")
	otherToken := testutil.EngineerToken("eng-007")

	number, ids := submitGroup(t, env, engToken, false, "钉子", "木板")
	if got := itemStatus(t, env, ids[0]); got != entity.StatusDraft {
		t.Fatalf("expected draft, got %s", got)
	}

	// 非创建人不能删除草稿
	w := testutil.DoRequest(env.Router, http.MethodDelete, "/api/v1/requests/items/"+ids[1], nil, otherToken)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-creator delete, got %d", w.Code)
	}

	// 创建人删除第二项
	w = testutil.DoRequest(env.Router, http.MethodDelete, "/api/v1/requests/items/"+ids[1], nil, engToken)
	if w.Code != http.StatusOK {
		t.Fatalf("draft delete failed: %d %s", w.Code, w.Body.String())
	}

	// 整组送审
	w = testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/requests/"+number+"/send", nil, engToken)
	if w.Code != http.StatusOK {
		t.Fatalf("send failed: %d %s", w.Code, w.Body.String())
	}
	if got := itemStatus(t, env, ids[0]); got != entity.StatusPending {
		t.Fatalf("expected pending after send, got %s", got)
	}

	// 已送审的行项不能删除
	w = testutil.DoRequest(env.Router, http.MethodDelete, "/api/v1/requests/items/"+ids[0], nil, engToken)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 deleting pending item, got %d", w.Code)
	}
}

// PO行项不可重复引用同一申请行项，拒绝后可正常重新下单
func TestPurchaseOrderDuplicateLines(t *testing.T) {
	env := setupProcureTest(t)
	engToken := testutil.EngineerToken("eng-009")
	mgrToken := testutil.ManagerToken("mgr-001")
	poToken := testutil.PurchaseOfficerToken("po-001")

	testutil.SeedTestVendor(t, env.DB, "vendor-003", "V-003", "木材供应商C")

	_, ids := submitGroup(t, env, engToken, true, "方木")
	itemID := ids[0]
	transition(t, env, mgrToken, itemID, "approve", map[string]interface{}{
		"intent": map[string]bool{"direct_po": true},
	})

	poBody := map[string]interface{}{
		"vendor_id": "vendor-003",
		"lines": []map[string]interface{}{
			{"request_item_id": itemID, "quantity": 6, "unit_price": 35},
			{"request_item_id": itemID, "quantity": 4, "unit_price": 35},
		},
	}
	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/purchase-orders", poBody, poToken)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for duplicate line item, got %d: %s", w.Code, w.Body.String())
	}
	if got := itemStatus(t, env, itemID); got != entity.StatusDirectPO {
		t.Fatalf("item should stay direct_po after rejected PO, got %s", got)
	}

	// 去重后下单、签核全程正常
	poBody["lines"] = []map[string]interface{}{
		{"request_item_id": itemID, "unit_price": 35},
	}
	w = testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/purchase-orders", poBody, poToken)
	if w.Code != http.StatusCreated {
		t.Fatalf("PO create after dedupe failed: %d %s", w.Code, w.Body.String())
	}
	poNumber := testutil.ParseResponse(w)["data"].(map[string]interface{})["po_number"].(string)

	w = testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/purchase-orders/"+poNumber+"/sign", nil, mgrToken)
	if w.Code != http.StatusOK {
		t.Fatalf("sign failed: %d %s", w.Code, w.Body.String())
	}
	if got := itemStatus(t, env, itemID); got != entity.StatusReadyForDelivery {
		t.Fatalf("expected ready_for_delivery, got %s", got)
	}
}

// 许可账本并发覆盖防护：落账以读取快照为前置条件，快照过期则拒绝写入
func TestGrantLedgerStaleSnapshot(t *testing.T) {
	env := setupProcureTest(t)
	engToken := testutil.EngineerToken("eng-010")
	mgrToken := testutil.ManagerToken("mgr-001")

	_, ids := submitGroup(t, env, engToken, true, "角钢")
	itemID := ids[0]
	transition(t, env, mgrToken, itemID, "approve", map[string]interface{}{
		"intent": map[string]bool{"direct_po": true, "split": true},
	})

	var item entity.RequestItem
	env.DB.First(&item, "id = ?", itemID)
	if item.Status != entity.StatusRecheck || item.DirectAction != workflow.DirectSplitPO {
		t.Fatalf("expected recheck with split_po ledger, got %s %q", item.Status, item.DirectAction)
	}

	// 基于过期快照（空账本）的写入必须被拒，而不是覆盖已授予的许可
	repo := repository.NewRequestRepository(env.DB)
	err := repo.UpdateGrantCAS(context.Background(), itemID, "", false, workflow.DirectDelivery, false)
	if !errors.Is(err, repository.ErrStale) {
		t.Fatalf("expected ErrStale for stale ledger snapshot, got %v", err)
	}
	env.DB.First(&item, "id = ?", itemID)
	if item.DirectAction != workflow.DirectSplitPO || !item.IsSplitApproved {
		t.Fatalf("ledger was overwritten: %q split=%v", item.DirectAction, item.IsSplitApproved)
	}

	// 基于最新快照的授予正常合并
	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/requests/items/"+itemID+"/permissions",
		map[string]interface{}{"capability": "delivery"}, mgrToken)
	if w.Code != http.StatusOK {
		t.Fatalf("fresh grant failed: %d %s", w.Code, w.Body.String())
	}
	env.DB.First(&item, "id = ?", itemID)
	if item.DirectAction != workflow.DirectSplitPODelivery {
		t.Fatalf("expected merged split_po_delivery, got %q", item.DirectAction)
	}
}

// 驳回原因不变式：驳回写入原因，离开驳回态后清除
func TestRejectionReasonInvariant(t *testing.T) {
	env := setupProcureTest(t)
	engToken := testutil.EngineerToken("eng-008")
	mgrToken := testutil.ManagerToken("mgr-001")
	poToken := testutil.PurchaseOfficerToken("po-001")

	_, ids := submitGroup(t, env, engToken, true, "油漆")
	itemID := ids[0]

	// CC流程走到驳回再重提
	transition(t, env, mgrToken, itemID, "approve", nil)
	transition(t, env, poToken, itemID, "request_cc", nil)
	transition(t, env, mgrToken, itemID, "open_cc", nil)
	transition(t, env, mgrToken, itemID, "reject_cc", map[string]interface{}{"reason": "成本核算不完整"})

	var item entity.RequestItem
	env.DB.First(&item, "id = ?", itemID)
	if item.Status != entity.StatusCCRejected || item.RejectionReason != "成本核算不完整" {
		t.Fatalf("expected cc_rejected with reason, got %s %q", item.Status, item.RejectionReason)
	}

	// 重提后原因清除
	transition(t, env, mgrToken, itemID, "resubmit_cc", nil)
	env.DB.First(&item, "id = ?", itemID)
	if item.Status != entity.StatusCCPending {
		t.Fatalf("expected cc_pending, got %s", item.Status)
	}
	if item.RejectionReason != "" {
		t.Fatalf("rejection reason should be cleared on resubmit, got %q", item.RejectionReason)
	}
}
