package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/voltride/fleetengine-backend/pricing"
)

type pricingResponse struct {
	ID             uuid.UUID     `json:"id"`
	BasePrice      pricing.Cents `json:"basePrice"`
	PricePerMinute pricing.Cents `json:"pricePerMinute"`
	IsActive       bool          `json:"isActive"`
	CreatedAt      time.Time     `json:"createdAt"`
}

func toPricingResponse(r pricing.Rule) pricingResponse {
	return pricingResponse{
		ID:             r.ID,
		BasePrice:      r.BasePrice,
		PricePerMinute: r.PricePerMinute,
		IsActive:       r.IsActive,
		CreatedAt:      r.CreatedAt,
	}
}

func (a *API) activePricingHandler(c *gin.Context) {
	rule, err := a.pricing.ActiveRule(c.Request.Context())
	if err != nil {
		if errors.Is(err, pricing.ErrNoActivePricing) {
			c.JSON(http.StatusOK, nil)
			return
		}
		a.errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, toPricingResponse(rule))
}

type createPricingRequest struct {
	BasePrice      string `json:"basePrice" binding:"required"`
	PricePerMinute string `json:"pricePerMinute" binding:"required"`
}

func (a *API) createPricingHandler(c *gin.Context) {
	var req createPricingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": err.Error()})
		return
	}

	base, err := pricing.ParseCents(req.BasePrice)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "Invalid basePrice"})
		return
	}
	perMinute, err := pricing.ParseCents(req.PricePerMinute)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "Invalid pricePerMinute"})
		return
	}

	rule, err := a.pricing.Create(c.Request.Context(), base, perMinute)
	if err != nil {
		a.errorResponse(c, err)
		return
	}

	c.JSON(http.StatusCreated, toPricingResponse(rule))
}
