package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/voltride/fleetengine-backend/device"
	"github.com/voltride/fleetengine-backend/internal/middleware"
	"github.com/voltride/fleetengine-backend/scooter"
)

type scooterResponse struct {
	ID           uuid.UUID          `json:"id"`
	SerialNumber string             `json:"serialNumber"`
	Status       scooter.Status     `json:"status"`
	BatteryLevel int                `json:"batteryLevel"`
	Latitude     scooter.Coordinate `json:"latitude"`
	Longitude    scooter.Coordinate `json:"longitude"`
	IsLocked     bool               `json:"isLocked"`
	LastPing     time.Time          `json:"lastPing"`
}

func toScooterResponse(sc scooter.Scooter) scooterResponse {
	return scooterResponse{
		ID:           sc.ID,
		SerialNumber: sc.SerialNumber,
		Status:       sc.Status,
		BatteryLevel: sc.BatteryLevel,
		Latitude:     sc.Latitude,
		Longitude:    sc.Longitude,
		IsLocked:     sc.IsLocked,
		LastPing:     sc.LastPing,
	}
}

func (a *API) listScootersHandler(c *gin.Context) {
	onlyAvailable := c.Query("available") == "true"

	scooters, err := a.scooters.List(c.Request.Context(), onlyAvailable)
	if err != nil {
		a.errorResponse(c, err)
		return
	}

	responses := make([]scooterResponse, 0, len(scooters))
	for _, sc := range scooters {
		responses = append(responses, toScooterResponse(sc))
	}
	c.JSON(http.StatusOK, responses)
}

func (a *API) getScooterHandler(c *gin.Context) {
	sc, err := a.scooters.GetBySerial(c.Request.Context(), c.Param("serial"))
	if err != nil {
		a.errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, toScooterResponse(sc))
}

type createScooterRequest struct {
	SerialNumber string   `json:"serialNumber" binding:"required"`
	Latitude     *float64 `json:"latitude" binding:"required"`
	Longitude    *float64 `json:"longitude" binding:"required"`
	BatteryLevel *int     `json:"batteryLevel"`
}

func (a *API) createScooterHandler(c *gin.Context) {
	var req createScooterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": err.Error()})
		return
	}

	battery := 100
	if req.BatteryLevel != nil {
		battery = *req.BatteryLevel
	}

	sc := &scooter.Scooter{
		ID:           uuid.New(),
		SerialNumber: req.SerialNumber,
		BatteryLevel: battery,
		Latitude:     scooter.Coordinate(*req.Latitude),
		Longitude:    scooter.Coordinate(*req.Longitude),
	}
	if err := a.scooters.Create(c.Request.Context(), sc); err != nil {
		a.errorResponse(c, err)
		return
	}

	c.JSON(http.StatusCreated, toScooterResponse(*sc))
}

type telemetryRequest struct {
	Latitude     *float64 `json:"latitude" binding:"required"`
	Longitude    *float64 `json:"longitude" binding:"required"`
	BatteryLevel *int     `json:"batteryLevel" binding:"required"`
}

func (a *API) telemetryHandler(c *gin.Context) {
	var req telemetryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": err.Error()})
		return
	}

	sc, err := a.scooters.GetBySerial(c.Request.Context(), c.Param("serial"))
	if err != nil {
		a.errorResponse(c, err)
		return
	}

	updated, err := a.scooters.UpdateTelemetry(c.Request.Context(), sc.ID,
		scooter.Coordinate(*req.Latitude), scooter.Coordinate(*req.Longitude), *req.BatteryLevel)
	if err != nil {
		a.errorResponse(c, err)
		return
	}

	c.JSON(http.StatusOK, toScooterResponse(updated))
}

type commandRequest struct {
	Command device.Command `json:"command" binding:"required"`
}

func (a *API) commandHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": err.Error()})
		return
	}

	sc, err := a.scooters.GetBySerial(c.Request.Context(), c.Param("serial"))
	if err != nil {
		a.errorResponse(c, err)
		return
	}

	result, err := a.gateway.Send(c.Request.Context(), sc.ID, req.Command)
	if err != nil && !errors.Is(err, device.ErrAckTimeout) && !errors.Is(err, device.ErrCommandRejected) {
		a.errorResponse(c, err)
		return
	}
	if err != nil {
		// The hardware outcome is part of the payload; operators decide
		// whether to retry.
		logger.Warn("scooter command failed", "serial", sc.SerialNumber, "command", req.Command, "error", err)
	}

	c.JSON(http.StatusOK, result)
}
