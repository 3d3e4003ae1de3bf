package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"foodledger/internal/core/id"
	"foodledger/internal/domain"
	"foodledger/internal/domain/inventory"
	"foodledger/internal/infrastructure/http/v1/dto"
)

// InventoryService is the ledger surface the HTTP layer needs.
type InventoryService interface {
	Create(ctx context.Context, in inventory.CreateInput) (*inventory.Record, error)
	Get(ctx context.Context, inventoryID id.ID) (*inventory.Record, error)
	GetBySKU(ctx context.Context, key inventory.Key) (*inventory.Record, error)
	List(ctx context.Context, filter inventory.ListFilter) (domain.ListResult[inventory.Record], error)
	Deactivate(ctx context.Context, inventoryID id.ID) error

	RecordMovement(ctx context.Context, in inventory.MovementInput) (*inventory.Movement, error)
	Movements(ctx context.Context, filter inventory.MovementFilter) (domain.ListResult[inventory.Movement], error)

	Reserve(ctx context.Context, in inventory.ReserveInput) ([]inventory.ReservationResult, error)
	Release(ctx context.Context, orderID string, skus []string) error
	Commit(ctx context.Context, in inventory.CommitInput) error

	Adjust(ctx context.Context, in inventory.AdjustInput) (*inventory.Record, error)
	BulkAdjust(ctx context.Context, in inventory.BulkAdjustInput) (inventory.BulkAdjustResult, error)
	ReceivePurchase(ctx context.Context, p inventory.PurchaseReceipt) (*inventory.Movement, error)

	LowStock(ctx context.Context, page domain.Page) (domain.ListResult[inventory.Record], error)
	Expiring(ctx context.Context, days int, page domain.Page) (domain.ListResult[inventory.Record], error)
	Summary(ctx context.Context) (inventory.Summary, error)
	StockByProduct(ctx context.Context, productIDs []id.ID) ([]inventory.ProductStock, error)
	Reconcile(ctx context.Context, inventoryID id.ID) (inventory.Reconciliation, error)
}

// InventoryHandler handles HTTP requests for the inventory ledger.
type InventoryHandler struct {
	*BaseHandler
	service InventoryService
}

// NewInventoryHandler creates a new inventory handler.
func NewInventoryHandler(base *BaseHandler, service InventoryService) *InventoryHandler {
	return &InventoryHandler{
		BaseHandler: base,
		service:     service,
	}
}

// RegisterRoutes mounts the ledger endpoints on rg.
func (h *InventoryHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.GET("", h.List)
	rg.GET("/:id", h.Get)
	rg.DELETE("/:id", h.Deactivate)
	rg.GET("/:id/reconcile", h.Reconcile)
	rg.GET("/product/:sku", h.GetBySKU)

	rg.POST("/movements", h.RecordMovement)
	rg.GET("/movements", h.Movements)

	rg.POST("/reserve", h.Reserve)
	rg.POST("/release", h.Release)
	rg.POST("/commit", h.Commit)

	rg.POST("/adjust", h.Adjust)
	rg.POST("/bulk-adjust", h.BulkAdjust)
	rg.POST("/receipts", h.ReceivePurchase)

	rg.GET("/alerts/low-stock", h.LowStock)
	rg.GET("/alerts/expiring", h.Expiring)
	rg.GET("/reports/summary", h.Summary)
	rg.GET("/reports/stock-by-product", h.StockByProduct)
}

// Create handles POST /inventory
func (h *InventoryHandler) Create(c *gin.Context) {
	var req dto.CreateInventoryRequest
	if !h.BindJSON(c, &req) {
		return
	}
	in, err := req.ToInput()
	if err != nil {
		h.Error(c, err)
		return
	}

	rec, err := h.service.Create(c.Request.Context(), in)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, rec)
}

// List handles GET /inventory
func (h *InventoryHandler) List(c *gin.Context) {
	var q dto.ListInventoryQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter, err := q.ToFilter()
	if err != nil {
		h.Error(c, err)
		return
	}

	result, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, result)
}

// Get handles GET /inventory/:id
func (h *InventoryHandler) Get(c *gin.Context) {
	inventoryID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	rec, err := h.service.Get(c.Request.Context(), inventoryID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, rec)
}

// GetBySKU handles GET /inventory/product/:sku?variantSku=
func (h *InventoryHandler) GetBySKU(c *gin.Context) {
	key := inventory.Key{ProductSKU: c.Param("sku")}
	if v, ok := c.GetQuery("variantSku"); ok && v != "" {
		key.VariantSKU = &v
	}
	rec, err := h.service.GetBySKU(c.Request.Context(), key)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, rec)
}

// Deactivate handles DELETE /inventory/:id
func (h *InventoryHandler) Deactivate(c *gin.Context) {
	inventoryID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	if err := h.service.Deactivate(c.Request.Context(), inventoryID); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// Reconcile handles GET /inventory/:id/reconcile
func (h *InventoryHandler) Reconcile(c *gin.Context) {
	inventoryID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	rep, err := h.service.Reconcile(c.Request.Context(), inventoryID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, rep)
}

// RecordMovement handles POST /inventory/movements
func (h *InventoryHandler) RecordMovement(c *gin.Context) {
	var req dto.MovementRequest
	if !h.BindJSON(c, &req) {
		return
	}
	in, err := req.ToInput()
	if err != nil {
		h.Error(c, err)
		return
	}

	m, err := h.service.RecordMovement(c.Request.Context(), in)
	if err != nil {
		h.Error(c, err)
		return
	}
	if m == nil {
		h.Success(c, "quantity unchanged, no movement recorded")
		return
	}
	h.Created(c, m)
}

// Movements handles GET /inventory/movements
func (h *InventoryHandler) Movements(c *gin.Context) {
	var q dto.MovementQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter, err := q.ToFilter()
	if err != nil {
		h.Error(c, err)
		return
	}

	result, err := h.service.Movements(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, result)
}

// Reserve handles POST /inventory/reserve
func (h *InventoryHandler) Reserve(c *gin.Context) {
	var req dto.ReserveRequest
	if !h.BindJSON(c, &req) {
		return
	}

	res, err := h.service.Reserve(c.Request.Context(), req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.ReserveResponse{OrderID: req.OrderID, Reservations: res})
}

// Release handles POST /inventory/release
func (h *InventoryHandler) Release(c *gin.Context) {
	var req dto.ReleaseRequest
	if !h.BindJSON(c, &req) {
		return
	}
	if err := h.service.Release(c.Request.Context(), req.OrderID, req.ProductSKUs); err != nil {
		h.Error(c, err)
		return
	}
	h.Success(c, "reservation released")
}

// Commit handles POST /inventory/commit
func (h *InventoryHandler) Commit(c *gin.Context) {
	var req dto.CommitRequest
	if !h.BindJSON(c, &req) {
		return
	}
	if err := h.service.Commit(c.Request.Context(), req.ToInput()); err != nil {
		h.Error(c, err)
		return
	}
	h.Success(c, "stock committed")
}

// Adjust handles POST /inventory/adjust
func (h *InventoryHandler) Adjust(c *gin.Context) {
	var req dto.AdjustRequest
	if !h.BindJSON(c, &req) {
		return
	}
	in, err := req.ToInput()
	if err != nil {
		h.Error(c, err)
		return
	}

	rec, err := h.service.Adjust(c.Request.Context(), in)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, rec)
}

// BulkAdjust handles POST /inventory/bulk-adjust
func (h *InventoryHandler) BulkAdjust(c *gin.Context) {
	var req dto.BulkAdjustRequest
	if !h.BindJSON(c, &req) {
		return
	}

	res, err := h.service.BulkAdjust(c.Request.Context(), req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}

// ReceivePurchase handles POST /inventory/receipts
func (h *InventoryHandler) ReceivePurchase(c *gin.Context) {
	var req dto.PurchaseReceiptRequest
	if !h.BindJSON(c, &req) {
		return
	}
	in, err := req.ToInput()
	if err != nil {
		h.Error(c, err)
		return
	}

	m, err := h.service.ReceivePurchase(c.Request.Context(), in)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, m)
}

// LowStock handles GET /inventory/alerts/low-stock
func (h *InventoryHandler) LowStock(c *gin.Context) {
	var q dto.PageRequest
	if !h.BindQuery(c, &q) {
		return
	}
	result, err := h.service.LowStock(c.Request.Context(), q.ToPage())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, result)
}

// Expiring handles GET /inventory/alerts/expiring?days=7
func (h *InventoryHandler) Expiring(c *gin.Context) {
	var q dto.ExpiringQuery
	if !h.BindQuery(c, &q) {
		return
	}
	result, err := h.service.Expiring(c.Request.Context(), q.Days, q.ToPage())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, result)
}

// Summary handles GET /inventory/reports/summary
func (h *InventoryHandler) Summary(c *gin.Context) {
	sum, err := h.service.Summary(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, sum)
}

// StockByProduct handles GET /inventory/reports/stock-by-product?productId=
func (h *InventoryHandler) StockByProduct(c *gin.Context) {
	var q dto.StockByProductQuery
	if !h.BindQuery(c, &q) {
		return
	}
	ids, err := q.ToIDs()
	if err != nil {
		h.Error(c, err)
		return
	}

	rows, err := h.service.StockByProduct(c.Request.Context(), ids)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"items": rows})
}
