package handler

import (
	"net/http"
	"strconv"

	"inventory-service/internal/model"
	"inventory-service/pkg/database"
	"inventory-service/pkg/logger"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// ItemRequest defines the structure for catalog creation/update requests.
// Quantity on hand is deliberately absent: quantities only change through
// the ledger.
type ItemRequest struct {
	Name           string  `json:"name" validate:"required"`
	SKU            string  `json:"sku" validate:"required"`
	ItemType       string  `json:"item_type"`
	WidthIn        *int    `json:"width_in"`
	HeightIn       *int    `json:"height_in"`
	Reflectivity   *string `json:"reflectivity"`
	LCTRequiredQty int64   `json:"lct_required_qty"`
	HwyRequiredQty int64   `json:"hwy_required_qty"`
	Billable       bool    `json:"billable"`
	Active         bool    `json:"active"`
}

// ListItems handles retrieving the equipment catalog with optional filtering
func ListItems(c echo.Context) error {
	log := logger.FromContext(c)
	log.Info("Listing inventory items with filters")

	db := database.GetDB()
	var items []model.InventoryItem

	query := db

	// Filter by active status if specified
	active := c.QueryParam("active")
	if active != "" {
		isActive, err := strconv.ParseBool(active)
		if err == nil {
			query = query.Where("active = ?", isActive)
			log.Info("Filtering items by active status", zap.Bool("active", isActive))
		} else {
			log.Warn("Invalid active parameter", zap.String("value", active), zap.Error(err))
		}
	}

	// Filter by equipment type if specified
	itemType := c.QueryParam("type")
	if itemType != "" {
		query = query.Where("item_type = ?", itemType)
		log.Info("Filtering items by type", zap.String("item_type", itemType))
	}

	result := query.Order("id").Find(&items)
	if result.Error != nil {
		log.Error("Failed to list items", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "Failed to retrieve items",
		})
	}

	log.Info("Items retrieved successfully", zap.Int("count", len(items)))
	return c.JSON(http.StatusOK, items)
}

// GetItem handles retrieving a single catalog entry by ID
func GetItem(c echo.Context) error {
	log := logger.FromContext(c)
	id := c.Param("id")
	log.Info("Getting item by ID", zap.String("item_id", id))

	var item model.InventoryItem
	result := database.GetDB().First(&item, id)
	if result.Error != nil {
		log.Error("Item not found",
			zap.String("item_id", id),
			zap.Error(result.Error))
		return c.JSON(http.StatusNotFound, echo.Map{
			"error": "Item not found",
		})
	}

	log.Info("Item retrieved successfully",
		zap.String("item_id", id),
		zap.String("name", item.Name),
		zap.String("sku", item.SKU))
	return c.JSON(http.StatusOK, item)
}

// CreateItem handles adding a new catalog entry
func CreateItem(c echo.Context) error {
	log := logger.FromContext(c)
	log.Info("Creating new inventory item")

	var req ItemRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "Invalid request data",
		})
	}

	if req.Name == "" || req.SKU == "" {
		log.Warn("Missing required item fields")
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "name and sku are required",
		})
	}

	log.Info("Item creation request",
		zap.String("name", req.Name),
		zap.String("sku", req.SKU),
		zap.String("item_type", req.ItemType))

	// Check if an item with this SKU already exists
	var count int64
	database.GetDB().Model(&model.InventoryItem{}).Where("sku = ?", req.SKU).Count(&count)
	if count > 0 {
		log.Warn("Item with this SKU already exists", zap.String("sku", req.SKU))
		return c.JSON(http.StatusConflict, echo.Map{
			"error": "Item with this SKU already exists",
		})
	}

	itemType := model.ItemType(req.ItemType)
	if itemType == "" {
		itemType = model.ItemTypeOther
	}

	item := model.InventoryItem{
		Name:           req.Name,
		SKU:            req.SKU,
		ItemType:       itemType,
		WidthIn:        req.WidthIn,
		HeightIn:       req.HeightIn,
		Reflectivity:   req.Reflectivity,
		LCTRequiredQty: req.LCTRequiredQty,
		HwyRequiredQty: req.HwyRequiredQty,
		Billable:       req.Billable,
		Active:         req.Active,
	}

	result := database.GetDB().Create(&item)
	if result.Error != nil {
		log.Error("Failed to create item",
			zap.String("name", req.Name),
			zap.String("sku", req.SKU),
			zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "Failed to create item",
		})
	}

	log.Info("Item created successfully",
		zap.Uint("item_id", item.ID),
		zap.String("name", item.Name),
		zap.String("sku", item.SKU))
	return c.JSON(http.StatusCreated, item)
}

// UpdateItem handles updating the descriptive fields of a catalog entry.
// Ledger references stay valid because the row itself is never replaced.
func UpdateItem(c echo.Context) error {
	log := logger.FromContext(c)
	id := c.Param("id")
	log.Info("Updating item", zap.String("item_id", id))

	var req ItemRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data",
			zap.String("item_id", id),
			zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "Invalid request data",
		})
	}

	var item model.InventoryItem
	result := database.GetDB().First(&item, id)
	if result.Error != nil {
		log.Error("Item not found for update",
			zap.String("item_id", id),
			zap.Error(result.Error))
		return c.JSON(http.StatusNotFound, echo.Map{
			"error": "Item not found",
		})
	}

	oldSKU := item.SKU

	// Check if SKU is changed and if new SKU already exists
	if req.SKU != item.SKU {
		log.Info("Item SKU change requested",
			zap.String("item_id", id),
			zap.String("old_sku", oldSKU),
			zap.String("new_sku", req.SKU))

		var count int64
		database.GetDB().Model(&model.InventoryItem{}).Where("sku = ? AND id != ?", req.SKU, id).Count(&count)
		if count > 0 {
			log.Warn("Item with this SKU already exists",
				zap.String("sku", req.SKU))
			return c.JSON(http.StatusConflict, echo.Map{
				"error": "Item with this SKU already exists",
			})
		}
	}

	item.Name = req.Name
	item.SKU = req.SKU
	if req.ItemType != "" {
		item.ItemType = model.ItemType(req.ItemType)
	}
	item.WidthIn = req.WidthIn
	item.HeightIn = req.HeightIn
	item.Reflectivity = req.Reflectivity
	item.LCTRequiredQty = req.LCTRequiredQty
	item.HwyRequiredQty = req.HwyRequiredQty
	item.Billable = req.Billable
	item.Active = req.Active

	result = database.GetDB().Save(&item)
	if result.Error != nil {
		log.Error("Failed to update item",
			zap.String("item_id", id),
			zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "Failed to update item",
		})
	}

	log.Info("Item updated successfully",
		zap.String("item_id", id),
		zap.String("name", item.Name),
		zap.String("old_sku", oldSKU),
		zap.String("new_sku", item.SKU))
	return c.JSON(http.StatusOK, item)
}

// DeleteItem retires a catalog entry (soft delete). Ledger history keeps
// referencing the row.
func DeleteItem(c echo.Context) error {
	log := logger.FromContext(c)
	id := c.Param("id")
	log.Info("Retiring item", zap.String("item_id", id))

	var item model.InventoryItem
	preResult := database.GetDB().First(&item, id)
	if preResult.Error == nil {
		log.Info("Found item to retire",
			zap.String("item_id", id),
			zap.String("name", item.Name),
			zap.String("sku", item.SKU))
	}

	result := database.GetDB().Delete(&model.InventoryItem{}, id)
	if result.Error != nil {
		log.Error("Failed to retire item",
			zap.String("item_id", id),
			zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "Failed to retire item",
		})
	}

	if result.RowsAffected == 0 {
		log.Warn("Item not found for retirement",
			zap.String("item_id", id))
		return c.JSON(http.StatusNotFound, echo.Map{
			"error": "Item not found",
		})
	}

	log.Info("Item retired successfully",
		zap.String("item_id", id))
	return c.JSON(http.StatusOK, echo.Map{
		"message": "Item retired successfully",
	})
}
