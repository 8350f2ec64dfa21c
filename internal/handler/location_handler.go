package handler

import (
	"net/http"

	"inventory-service/internal/middleware"
	"inventory-service/internal/model"
	"inventory-service/pkg/database"
	"inventory-service/pkg/logger"
	"inventory-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// SiteRequest defines the structure for site creation/update requests
type SiteRequest struct {
	Name    string `json:"name" validate:"required"`
	Address string `json:"address"`
	Active  *bool  `json:"active"`
}

// VehicleRequest defines the structure for vehicle creation/update requests
type VehicleRequest struct {
	Name         string `json:"name" validate:"required"`
	DriverName   string `json:"driver_name"`
	VehicleClass string `json:"vehicle_class"`
	Active       *bool  `json:"active"`
}

// ListSites handles retrieving all sites
func (h *InventoryHandler) ListSites(c echo.Context) error {
	return listLocations(c, model.LocationKindSite)
}

// ListVehicles handles retrieving all vehicles
func (h *InventoryHandler) ListVehicles(c echo.Context) error {
	return listLocations(c, model.LocationKindVehicle)
}

func listLocations(c echo.Context, kind model.LocationKind) error {
	log := logger.FromContext(c)

	var locations []model.Location
	result := database.GetDB().Where("kind = ?", kind).Order("id").Find(&locations)
	if result.Error != nil {
		log.Error("Failed to list locations",
			zap.String("kind", string(kind)),
			zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "Failed to retrieve " + string(kind) + "s",
		})
	}

	log.Info("Locations retrieved successfully",
		zap.String("kind", string(kind)),
		zap.Int("count", len(locations)))
	return c.JSON(http.StatusOK, locations)
}

// GetSite handles retrieving a single site by ID
func (h *InventoryHandler) GetSite(c echo.Context) error {
	return getLocation(c, model.LocationKindSite)
}

// GetVehicle handles retrieving a single vehicle by ID
func (h *InventoryHandler) GetVehicle(c echo.Context) error {
	return getLocation(c, model.LocationKindVehicle)
}

func getLocation(c echo.Context, kind model.LocationKind) error {
	log := logger.FromContext(c)
	id := c.Param("id")

	var loc model.Location
	result := database.GetDB().Where("kind = ?", kind).First(&loc, id)
	if result.Error != nil {
		log.Error("Location not found",
			zap.String("kind", string(kind)),
			zap.String("location_id", id),
			zap.Error(result.Error))
		return c.JSON(http.StatusNotFound, echo.Map{
			"error": string(kind) + " not found",
		})
	}

	return c.JSON(http.StatusOK, loc)
}

// CreateSite handles creating a new site
func (h *InventoryHandler) CreateSite(c echo.Context) error {
	log := logger.FromContext(c)
	log.Info("Creating new site")

	var req SiteRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request data"})
	}
	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}

	site := model.Location{
		Kind:    model.LocationKindSite,
		Name:    req.Name,
		Address: req.Address,
		Active:  true,
	}

	result := database.GetDB().Create(&site)
	if result.Error != nil {
		log.Error("Failed to create site",
			zap.String("name", req.Name),
			zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to create site"})
	}

	log.Info("Site created successfully",
		zap.Uint("site_id", site.ID),
		zap.String("name", site.Name))
	return c.JSON(http.StatusCreated, site)
}

// CreateVehicle handles creating a new vehicle. Vehicles with a class are
// auto-stocked from the external pool to the per-item targets of that class.
func (h *InventoryHandler) CreateVehicle(c echo.Context) error {
	log := logger.FromContext(c)
	log.Info("Creating new vehicle")

	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing user context"})
	}

	var req VehicleRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request data"})
	}
	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}
	class := model.VehicleClass(req.VehicleClass)
	if class != "" && class != model.VehicleClassLCT && class != model.VehicleClassHwy {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "vehicle_class must be lct or hwy"})
	}

	vehicle := model.Location{
		Kind:         model.LocationKindVehicle,
		Name:         req.Name,
		DriverName:   req.DriverName,
		VehicleClass: class,
		Active:       true,
	}

	result := database.GetDB().Create(&vehicle)
	if result.Error != nil {
		log.Error("Failed to create vehicle",
			zap.String("name", req.Name),
			zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to create vehicle"})
	}

	txs, err := h.svc.ProvisionVehicle(c.Request().Context(), vehicle.ID, userID)
	if err != nil {
		// The vehicle exists; provisioning can be redone by setting its
		// inventory. Surface the failure rather than half-reporting it.
		log.Error("Vehicle created but provisioning failed",
			zap.Uint("vehicle_id", vehicle.ID),
			zap.Error(err))
		return h.ledgerError(c, log, err)
	}
	prometheus.RecordLedgerTransactions(string(model.TransactionSiteToVehicle), len(txs))

	log.Info("Vehicle created successfully",
		zap.Uint("vehicle_id", vehicle.ID),
		zap.String("name", vehicle.Name),
		zap.String("vehicle_class", string(vehicle.VehicleClass)),
		zap.Int("provisioned_items", len(txs)))
	return c.JSON(http.StatusCreated, echo.Map{
		"vehicle":     vehicle,
		"provisioned": txs,
	})
}

// UpdateSite handles updating a site's descriptive fields
func (h *InventoryHandler) UpdateSite(c echo.Context) error {
	log := logger.FromContext(c)
	id := c.Param("id")
	log.Info("Updating site", zap.String("site_id", id))

	var req SiteRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request data"})
	}

	var site model.Location
	result := database.GetDB().Where("kind = ?", model.LocationKindSite).First(&site, id)
	if result.Error != nil {
		log.Error("Site not found for update",
			zap.String("site_id", id),
			zap.Error(result.Error))
		return c.JSON(http.StatusNotFound, echo.Map{"error": "site not found"})
	}

	if req.Name != "" {
		site.Name = req.Name
	}
	site.Address = req.Address
	if req.Active != nil {
		site.Active = *req.Active
	}

	if err := database.GetDB().Save(&site).Error; err != nil {
		log.Error("Failed to update site",
			zap.String("site_id", id),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to update site"})
	}

	log.Info("Site updated successfully", zap.String("site_id", id))
	return c.JSON(http.StatusOK, site)
}

// UpdateVehicle handles updating a vehicle's descriptive fields; class
// changes do not restock automatically, that stays an explicit operation.
func (h *InventoryHandler) UpdateVehicle(c echo.Context) error {
	log := logger.FromContext(c)
	id := c.Param("id")
	log.Info("Updating vehicle", zap.String("vehicle_id", id))

	var req VehicleRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request data"})
	}

	var vehicle model.Location
	result := database.GetDB().Where("kind = ?", model.LocationKindVehicle).First(&vehicle, id)
	if result.Error != nil {
		log.Error("Vehicle not found for update",
			zap.String("vehicle_id", id),
			zap.Error(result.Error))
		return c.JSON(http.StatusNotFound, echo.Map{"error": "vehicle not found"})
	}

	if req.Name != "" {
		vehicle.Name = req.Name
	}
	vehicle.DriverName = req.DriverName
	if req.VehicleClass != "" {
		class := model.VehicleClass(req.VehicleClass)
		if class != model.VehicleClassLCT && class != model.VehicleClassHwy {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "vehicle_class must be lct or hwy"})
		}
		vehicle.VehicleClass = class
	}
	if req.Active != nil {
		vehicle.Active = *req.Active
	}

	if err := database.GetDB().Save(&vehicle).Error; err != nil {
		log.Error("Failed to update vehicle",
			zap.String("vehicle_id", id),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to update vehicle"})
	}

	log.Info("Vehicle updated successfully", zap.String("vehicle_id", id))
	return c.JSON(http.StatusOK, vehicle)
}
