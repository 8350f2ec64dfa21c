package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"inventory-service/internal/ledger"
	"inventory-service/internal/middleware"
	"inventory-service/internal/model"
	"inventory-service/pkg/logger"
	"inventory-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// InventoryHandler serves the ledger-facing endpoints: stock readouts,
// transfers, audits and history feeds. All writes go through the ledger
// service; nothing here touches stock levels directly.
type InventoryHandler struct {
	svc *ledger.Service
}

func NewInventoryHandler(svc *ledger.Service) *InventoryHandler {
	return &InventoryHandler{svc: svc}
}

// TransferHTTPRequest is the body of POST /api/transfers. from_pool marks an
// explicit external introduction; it is rejected together with a source so
// net-new stock can never slip in by accident.
type TransferHTTPRequest struct {
	ItemID           uint   `json:"item_id"`
	Quantity         int64  `json:"quantity"`
	SourceLocationID *uint  `json:"source_location_id"`
	DestLocationID   *uint  `json:"dest_location_id"`
	FromPool         bool   `json:"from_pool"`
	JobID            *uint  `json:"job_id"`
	ItemStatus       string `json:"item_status"`
}

// Transfer handles POST /api/transfers
func (h *InventoryHandler) Transfer(c echo.Context) error {
	log := logger.FromContext(c)

	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing user context"})
	}

	var req TransferHTTPRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid transfer request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request data"})
	}

	if req.FromPool && req.SourceLocationID != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "from_pool and source_location_id are mutually exclusive",
		})
	}
	if !req.FromPool && req.SourceLocationID == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "source_location_id is required unless from_pool is set",
		})
	}

	log.Info("Transfer request",
		zap.Uint("item_id", req.ItemID),
		zap.Int64("quantity", req.Quantity),
		zap.Bool("from_pool", req.FromPool),
		zap.Uint("submitted_by", userID))

	tx, err := h.svc.Transfer(c.Request().Context(), ledger.TransferRequest{
		ItemID:           req.ItemID,
		Quantity:         req.Quantity,
		SourceLocationID: req.SourceLocationID,
		DestLocationID:   req.DestLocationID,
		SubmittedBy:      userID,
		JobID:            req.JobID,
		ItemStatus:       model.ItemStatus(req.ItemStatus),
	})
	if err != nil {
		return h.ledgerError(c, log, err)
	}

	prometheus.RecordLedgerTransactions(string(tx.Type), 1)
	log.Info("Transfer recorded",
		zap.Uint64("transaction_id", tx.ID),
		zap.String("transaction_type", string(tx.Type)))
	return c.JSON(http.StatusCreated, tx)
}

// SiteInventory handles GET /api/sites/:id/inventory
func (h *InventoryHandler) SiteInventory(c echo.Context) error {
	return h.locationInventory(c, model.LocationKindSite)
}

// VehicleInventory handles GET /api/vehicles/:id/inventory
func (h *InventoryHandler) VehicleInventory(c echo.Context) error {
	return h.locationInventory(c, model.LocationKindVehicle)
}

func (h *InventoryHandler) locationInventory(c echo.Context, kind model.LocationKind) error {
	log := logger.FromContext(c)

	id, err := parseID(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid location id"})
	}

	loc, entries, err := h.svc.LocationStock(c.Request().Context(), id)
	if err != nil {
		return h.ledgerError(c, log, err)
	}
	if loc.Kind != kind {
		return c.JSON(http.StatusNotFound, echo.Map{"error": string(kind) + " not found"})
	}

	log.Info("Stock readout",
		zap.Uint("location_id", id),
		zap.String("kind", string(kind)),
		zap.Int("rows", len(entries)))
	return c.JSON(http.StatusOK, echo.Map{
		"location":  loc,
		"inventory": entries,
	})
}

// SiteHistory handles GET /api/sites/:id/inventory/history
func (h *InventoryHandler) SiteHistory(c echo.Context) error {
	return h.locationHistory(c, model.LocationKindSite)
}

// VehicleHistory handles GET /api/vehicles/:id/inventory/history
func (h *InventoryHandler) VehicleHistory(c echo.Context) error {
	return h.locationHistory(c, model.LocationKindVehicle)
}

func (h *InventoryHandler) locationHistory(c echo.Context, kind model.LocationKind) error {
	log := logger.FromContext(c)

	id, err := parseID(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid location id"})
	}

	f, err := parseFilter(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	txs, err := h.svc.History(c.Request().Context(), id, f)
	if err != nil {
		return h.ledgerError(c, log, err)
	}

	if grouped, _ := strconv.ParseBool(c.QueryParam("grouped")); grouped {
		groups := h.svc.Group(txs)
		log.Info("Grouped history served",
			zap.Uint("location_id", id),
			zap.Int("transactions", len(txs)),
			zap.Int("groups", len(groups)))
		return c.JSON(http.StatusOK, echo.Map{"groups": groups})
	}

	log.Info("History served",
		zap.Uint("location_id", id),
		zap.Int("transactions", len(txs)))
	return c.JSON(http.StatusOK, echo.Map{"transactions": txs})
}

// ItemHistory handles GET /api/items/:id/history — the per-item audit trail
// across all locations.
func (h *InventoryHandler) ItemHistory(c echo.Context) error {
	log := logger.FromContext(c)

	id, err := parseID(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid item id"})
	}

	f, err := parseFilter(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	txs, err := h.svc.ItemHistory(c.Request().Context(), id, f)
	if err != nil {
		return h.ledgerError(c, log, err)
	}

	log.Info("Item history served",
		zap.Uint("item_id", id),
		zap.Int("transactions", len(txs)))
	return c.JSON(http.StatusOK, echo.Map{"transactions": txs})
}

// AuditHTTPRequest is the body of the audit and quantity-edit endpoints.
type AuditHTTPRequest struct {
	Items []struct {
		InventoryID uint   `json:"inventory_id"`
		Quantity    int64  `json:"quantity"`
		ItemStatus  string `json:"item_status"`
	} `json:"items"`
	IsAudit *bool `json:"is_audit"`
}

// SiteAudit handles POST /api/sites/:id/inventory/audit
func (h *InventoryHandler) SiteAudit(c echo.Context) error {
	return h.locationAudit(c, model.LocationKindSite)
}

// VehicleAudit handles POST /api/vehicles/:id/inventory/audit
func (h *InventoryHandler) VehicleAudit(c echo.Context) error {
	return h.locationAudit(c, model.LocationKindVehicle)
}

func (h *InventoryHandler) locationAudit(c echo.Context, kind model.LocationKind) error {
	log := logger.FromContext(c)

	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing user context"})
	}

	id, err := parseID(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid location id"})
	}

	var req AuditHTTPRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid audit request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request data"})
	}
	if len(req.Items) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "audit needs at least one counted item"})
	}

	if err := h.requireKind(c, id, kind); err != nil {
		return err
	}

	// The audit endpoint records a formal reconciliation unless the caller
	// explicitly flags an ad-hoc edit.
	isAudit := true
	if req.IsAudit != nil {
		isAudit = *req.IsAudit
	}

	counts := make([]ledger.AuditCount, 0, len(req.Items))
	for _, it := range req.Items {
		counts = append(counts, ledger.AuditCount{
			ItemID:     it.InventoryID,
			Quantity:   it.Quantity,
			ItemStatus: model.ItemStatus(it.ItemStatus),
		})
	}

	log.Info("Audit submitted",
		zap.Uint("location_id", id),
		zap.Int("counted_items", len(counts)),
		zap.Bool("is_audit", isAudit),
		zap.Uint("submitted_by", userID))

	txs, err := h.svc.SubmitAudit(c.Request().Context(), id, counts, userID, isAudit)
	if err != nil {
		return h.ledgerError(c, log, err)
	}

	prometheus.RecordAuditSession(isAudit)
	prometheus.RecordLedgerTransactions(string(model.TransactionAuditAdjustment), len(txs))
	log.Info("Audit committed",
		zap.Uint("location_id", id),
		zap.Int("adjustments", len(txs)))
	return c.JSON(http.StatusCreated, echo.Map{"adjustments": txs})
}

// SetVehicleInventoryRequest is the body of POST /api/vehicles/:id/inventory:
// upsert-style stocking against the external pool.
type SetVehicleInventoryRequest struct {
	Items []struct {
		InventoryID uint  `json:"inventory_id"`
		Quantity    int64 `json:"quantity"`
	} `json:"items"`
}

// SetVehicleInventory handles POST /api/vehicles/:id/inventory. Each
// submitted quantity is a target; the ledger records only the deltas needed
// to reach it, as ad-hoc quantity edits.
func (h *InventoryHandler) SetVehicleInventory(c echo.Context) error {
	log := logger.FromContext(c)

	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing user context"})
	}

	id, err := parseID(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid vehicle id"})
	}

	var req SetVehicleInventoryRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid stocking request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request data"})
	}
	if len(req.Items) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "items must not be empty"})
	}

	if err := h.requireKind(c, id, model.LocationKindVehicle); err != nil {
		return err
	}

	counts := make([]ledger.AuditCount, 0, len(req.Items))
	for _, it := range req.Items {
		counts = append(counts, ledger.AuditCount{ItemID: it.InventoryID, Quantity: it.Quantity})
	}

	txs, err := h.svc.SubmitAudit(c.Request().Context(), id, counts, userID, false)
	if err != nil {
		return h.ledgerError(c, log, err)
	}

	prometheus.RecordAuditSession(false)
	prometheus.RecordLedgerTransactions(string(model.TransactionAuditAdjustment), len(txs))
	log.Info("Vehicle inventory set",
		zap.Uint("vehicle_id", id),
		zap.Int("adjustments", len(txs)),
		zap.Uint("submitted_by", userID))
	return c.JSON(http.StatusOK, echo.Map{"adjustments": txs})
}

// RemoveVehicleItem handles DELETE /api/vehicles/:id/inventory/:itemId. The
// item's full on-hand quantity goes back to the external pool.
func (h *InventoryHandler) RemoveVehicleItem(c echo.Context) error {
	log := logger.FromContext(c)

	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing user context"})
	}

	id, err := parseID(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid vehicle id"})
	}
	itemID, err := parseID(c.Param("itemId"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid item id"})
	}

	if err := h.requireKind(c, id, model.LocationKindVehicle); err != nil {
		return err
	}

	txs, err := h.svc.SubmitAudit(c.Request().Context(), id,
		[]ledger.AuditCount{{ItemID: itemID, Quantity: 0}}, userID, false)
	if err != nil {
		return h.ledgerError(c, log, err)
	}

	prometheus.RecordLedgerTransactions(string(model.TransactionAuditAdjustment), len(txs))
	log.Info("Vehicle item removed",
		zap.Uint("vehicle_id", id),
		zap.Uint("item_id", itemID),
		zap.Int("adjustments", len(txs)))
	return c.JSON(http.StatusOK, echo.Map{"adjustments": txs})
}

// requireKind answers 404 when the location exists but is the wrong variant,
// so site endpoints never operate on vehicles and vice versa.
func (h *InventoryHandler) requireKind(c echo.Context, id uint, kind model.LocationKind) error {
	loc, _, err := h.svc.LocationStock(c.Request().Context(), id)
	if err != nil {
		return h.ledgerError(c, logger.FromContext(c), err)
	}
	if loc.Kind != kind {
		return c.JSON(http.StatusNotFound, echo.Map{"error": string(kind) + " not found"})
	}
	return nil
}

// ledgerError maps the ledger error taxonomy onto structured HTTP responses.
// No partial success is ever reported: any error here means the ledger is
// unchanged.
func (h *InventoryHandler) ledgerError(c echo.Context, log *zap.Logger, err error) error {
	var validationErr *ledger.ValidationError
	var notFoundErr *ledger.NotFoundError
	var insufficientErr *ledger.InsufficientStockError
	var conflictErr *ledger.ConcurrencyConflictError

	switch {
	case errors.As(err, &validationErr):
		log.Warn("Request rejected", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": validationErr.Msg})
	case errors.As(err, &notFoundErr):
		log.Warn("Reference not found", zap.Error(err))
		return c.JSON(http.StatusNotFound, echo.Map{"error": notFoundErr.Error()})
	case errors.As(err, &insufficientErr):
		prometheus.InsufficientStockCounter.Inc()
		log.Warn("Insufficient stock",
			zap.Uint("item_id", insufficientErr.ItemID),
			zap.Uint("location_id", insufficientErr.LocationID),
			zap.Int64("requested", insufficientErr.Requested),
			zap.Int64("available", insufficientErr.Available))
		return c.JSON(http.StatusConflict, echo.Map{
			"error":     "insufficient stock",
			"available": insufficientErr.Available,
			"requested": insufficientErr.Requested,
		})
	case errors.As(err, &conflictErr):
		prometheus.ProjectionConflictCounter.Inc()
		log.Warn("Projection conflict retries exhausted", zap.Error(err))
		return c.JSON(http.StatusConflict, echo.Map{
			"error": "inventory is being updated concurrently, please retry",
		})
	default:
		log.Error("Ledger operation failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}

func parseID(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil || id == 0 {
		return 0, errors.New("invalid id")
	}
	return uint(id), nil
}

// parseFilter reads the shared history query parameters: limit, offset,
// type, item_status, from, to. Comma-separated lists are accepted for the
// enum filters.
func parseFilter(c echo.Context) (ledger.Filter, error) {
	f := ledger.Filter{Limit: defaultHistoryLimit}

	if v := c.QueryParam("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			return f, errors.New("invalid limit parameter")
		}
		if limit > maxHistoryLimit {
			limit = maxHistoryLimit
		}
		f.Limit = limit
	}
	if v := c.QueryParam("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			return f, errors.New("invalid offset parameter")
		}
		f.Offset = offset
	}
	if v := c.QueryParam("type"); v != "" {
		for _, t := range strings.Split(v, ",") {
			f.Types = append(f.Types, model.TransactionType(t))
		}
	}
	if v := c.QueryParam("item_status"); v != "" {
		for _, s := range strings.Split(v, ",") {
			f.ItemStatuses = append(f.ItemStatuses, model.ItemStatus(s))
		}
	}
	if v := c.QueryParam("from"); v != "" {
		from, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errors.New("invalid from timestamp, expected RFC3339")
		}
		f.From = &from
	}
	if v := c.QueryParam("to"); v != "" {
		to, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errors.New("invalid to timestamp, expected RFC3339")
		}
		f.To = &to
	}
	return f, nil
}
