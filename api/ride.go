package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/voltride/fleetengine-backend/internal/middleware"
	"github.com/voltride/fleetengine-backend/pricing"
	"github.com/voltride/fleetengine-backend/ride"
	"github.com/voltride/fleetengine-backend/scooter"
)

type rideResponse struct {
	ID              uuid.UUID           `json:"id"`
	UserID          uuid.UUID           `json:"userId"`
	ScooterID       uuid.UUID           `json:"scooterId"`
	Status          ride.Status         `json:"status"`
	StartLatitude   scooter.Coordinate  `json:"startLatitude"`
	StartLongitude  scooter.Coordinate  `json:"startLongitude"`
	EndLatitude     *scooter.Coordinate `json:"endLatitude,omitempty"`
	EndLongitude    *scooter.Coordinate `json:"endLongitude,omitempty"`
	DistanceKm      *float64            `json:"distanceKm,omitempty"`
	DurationMinutes *int                `json:"durationMinutes,omitempty"`
	TotalCost       *pricing.Cents      `json:"totalCost,omitempty"`
	StartedAt       time.Time           `json:"startedAt"`
	EndedAt         *time.Time          `json:"endedAt,omitempty"`
}

func toRideResponse(r ride.Ride) rideResponse {
	resp := rideResponse{
		ID:              r.ID,
		UserID:          r.UserID,
		ScooterID:       r.ScooterID,
		Status:          r.Status,
		StartLatitude:   r.StartLatitude,
		StartLongitude:  r.StartLongitude,
		EndLatitude:     r.EndLatitude,
		EndLongitude:    r.EndLongitude,
		DistanceKm:      r.DistanceKm,
		DurationMinutes: r.DurationMinutes,
		TotalCost:       r.TotalCost,
		StartedAt:       r.StartedAt,
	}
	if r.EndedAt.Valid {
		resp.EndedAt = &r.EndedAt.Time
	}
	return resp
}

type startRideRequest struct {
	UserID    string   `json:"userId" binding:"required"`
	ScooterID string   `json:"scooterId" binding:"required"`
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
}

func (a *API) startRideHandler(c *gin.Context) {
	var req startRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": err.Error()})
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "Invalid userId"})
		return
	}
	scooterID, err := uuid.Parse(req.ScooterID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "Invalid scooterId"})
		return
	}

	r, err := a.coord.StartRide(c.Request.Context(), userID, scooterID,
		scooter.Coordinate(*req.Latitude), scooter.Coordinate(*req.Longitude))
	if err != nil {
		a.errorResponse(c, err)
		return
	}

	c.JSON(http.StatusCreated, toRideResponse(r))
}

type endRideRequest struct {
	Latitude        *float64 `json:"latitude" binding:"required"`
	Longitude       *float64 `json:"longitude" binding:"required"`
	DistanceKm      *float64 `json:"distanceKm" binding:"required"`
	DurationMinutes *int     `json:"durationMinutes" binding:"required"`
}

func (a *API) endRideHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	rideID, err := uuid.Parse(c.Param("rideId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "Invalid rideId"})
		return
	}

	var req endRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": err.Error()})
		return
	}
	if *req.DistanceKm < 0 || *req.DurationMinutes < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "Distance and duration must not be negative"})
		return
	}

	r, err := a.coord.EndRide(c.Request.Context(), rideID,
		scooter.Coordinate(*req.Latitude), scooter.Coordinate(*req.Longitude),
		*req.DistanceKm, *req.DurationMinutes)
	if err != nil {
		a.errorResponse(c, err)
		return
	}

	a.invoiceRide(logger, r)

	c.JSON(http.StatusOK, toRideResponse(r))
}

// invoiceRide hands a completed ride off to the billing collaborator,
// asynchronously and best-effort. The invoice amount is the fare recorded on
// the ride, so a pricing change after completion never skews the charge. A
// billing failure never affects the ride.
func (a *API) invoiceRide(logger *slog.Logger, r ride.Ride) {
	if a.biller == nil || r.TotalCost == nil || r.DurationMinutes == nil {
		return
	}
	total := *r.TotalCost
	mins := *r.DurationMinutes

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		u, err := a.users.Get(ctx, r.UserID)
		if err != nil {
			logger.Error("invoicing: failed to load user", "rideId", r.ID, "error", err)
			return
		}
		if !u.StripeID.Valid {
			return
		}

		if err := a.biller.InvoiceRide(ctx, u.StripeID.String, total, mins); err != nil {
			logger.Error("invoicing: failed to invoice ride", "rideId", r.ID, "error", err)
		}
	}()
}

func (a *API) cancelRideHandler(c *gin.Context) {
	rideID, err := uuid.Parse(c.Param("rideId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "Invalid rideId"})
		return
	}

	r, err := a.coord.CancelRide(c.Request.Context(), rideID)
	if err != nil {
		a.errorResponse(c, err)
		return
	}

	c.JSON(http.StatusOK, toRideResponse(r))
}

func (a *API) rideHistoryHandler(c *gin.Context) {
	userID, err := uuid.Parse(c.Query("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "Invalid userId"})
		return
	}

	rides, err := a.rides.GetByUserID(c.Request.Context(), userID)
	if err != nil {
		a.errorResponse(c, err)
		return
	}

	responses := make([]rideResponse, 0, len(rides))
	for _, r := range rides {
		responses = append(responses, toRideResponse(r))
	}
	c.JSON(http.StatusOK, responses)
}
