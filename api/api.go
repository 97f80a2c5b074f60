package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voltride/fleetengine-backend/coordinator"
	"github.com/voltride/fleetengine-backend/dashboard"
	"github.com/voltride/fleetengine-backend/device"
	"github.com/voltride/fleetengine-backend/internal/middleware"
	"github.com/voltride/fleetengine-backend/internal/o11y"
	"github.com/voltride/fleetengine-backend/payment"
	"github.com/voltride/fleetengine-backend/pricing"
	"github.com/voltride/fleetengine-backend/ride"
	"github.com/voltride/fleetengine-backend/scooter"
	"github.com/voltride/fleetengine-backend/user"
)

// IdentityFunc extracts the caller's external identity (the Auth0 subject)
// from a request.
type IdentityFunc func(c *gin.Context) (string, bool)

// Config carries the deployment knobs the router needs. Auth and Identity
// default to the Auth0 JWT middleware when a domain is configured; tests
// substitute fakes.
type Config struct {
	Auth0Domain     string
	Audience        string
	MetricsUsername string
	MetricsPassword string

	Auth     gin.HandlerFunc
	Identity IdentityFunc
}

type API struct {
	r        *gin.Engine
	coord    *coordinator.Coordinator
	scooters *scooter.Repository
	rides    *ride.Repository
	pricing  *pricing.Repository
	users    *user.Repository
	gateway  *device.Gateway
	dash     *dashboard.Aggregator
	biller   payment.Biller
	identity IdentityFunc
}

func New(
	coord *coordinator.Coordinator,
	scooters *scooter.Repository,
	rides *ride.Repository,
	pricingRepo *pricing.Repository,
	users *user.Repository,
	gateway *device.Gateway,
	dash *dashboard.Aggregator,
	biller payment.Biller,
	obs *o11y.Observability,
	cfg Config,
) (*API, error) {
	a := &API{
		r:        gin.New(),
		coord:    coord,
		scooters: scooters,
		rides:    rides,
		pricing:  pricingRepo,
		users:    users,
		gateway:  gateway,
		dash:     dash,
		biller:   biller,
		identity: cfg.Identity,
	}

	a.r.Use(gin.Recovery())
	a.r.Use(middleware.Tracing())
	a.r.Use(middleware.Logging(obs.Logger))
	a.r.Use(middleware.Metrics(obs.Registry))

	a.r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if cfg.MetricsUsername != "" {
		metrics := a.r.Group("/metrics", gin.BasicAuth(gin.Accounts{cfg.MetricsUsername: cfg.MetricsPassword}))
		metrics.GET("", gin.WrapH(promhttp.HandlerFor(obs.Registry, promhttp.HandlerOpts{})))
	}

	auth := cfg.Auth
	if auth == nil && cfg.Auth0Domain != "" {
		jwt, err := middleware.JWT(cfg.Auth0Domain, cfg.Audience)
		if err != nil {
			return nil, err
		}
		auth = jwt
	}
	if a.identity == nil {
		a.identity = middleware.GetAuth0ID
	}

	protected := a.r.Group("/")
	if auth != nil {
		protected.Use(auth)
	}

	protected.POST("/rides/start", a.startRideHandler)
	protected.POST("/rides/:rideId/end", a.endRideHandler)
	protected.POST("/rides/:rideId/cancel", a.cancelRideHandler)
	protected.GET("/rides", a.rideHistoryHandler)
	protected.GET("/scooters", a.listScootersHandler)
	protected.GET("/scooters/:serial", a.getScooterHandler)
	protected.POST("/scooters/:serial/telemetry", a.telemetryHandler)
	protected.GET("/pricing/active", a.activePricingHandler)

	admin := protected.Group("/", a.requireAdmin)
	admin.POST("/scooters", a.createScooterHandler)
	admin.POST("/scooters/:serial/command", a.commandHandler)
	admin.POST("/pricing", a.createPricingHandler)
	admin.GET("/dashboard/metrics", a.dashboardHandler)

	return a, nil
}

func (a *API) Router() *gin.Engine {
	return a.r
}

func (a *API) requireAdmin(c *gin.Context) {
	logger := middleware.GetLogger(c)

	auth0ID, ok := a.identity(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHORIZED", "message": "Authentication required"})
		return
	}

	u, err := a.users.GetByAuth0ID(c, auth0ID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": "FORBIDDEN", "message": "Admin access required"})
			return
		}
		logger.ErrorContext(c, "failed to look up user", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if !u.IsAdmin {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": "FORBIDDEN", "message": "Admin access required"})
		return
	}

	c.Next()
}

// errorResponse maps component sentinels onto the API's error shape. The
// client sees a stable code and a human message, never internals.
func (a *API) errorResponse(c *gin.Context, err error) {
	switch {
	case errors.Is(err, coordinator.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "USER_NOT_FOUND", "message": "User not found"})
	case errors.Is(err, scooter.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "SCOOTER_NOT_FOUND", "message": "Scooter not found"})
	case errors.Is(err, ride.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "RIDE_NOT_FOUND", "message": "Ride not found"})
	case errors.Is(err, ride.ErrUserAlreadyRiding):
		c.JSON(http.StatusConflict, gin.H{"code": "USER_ALREADY_RIDING", "message": "User already has an active ride"})
	case errors.Is(err, scooter.ErrNotAvailable):
		c.JSON(http.StatusConflict, gin.H{"code": "SCOOTER_NOT_AVAILABLE", "message": "Scooter is not available"})
	case errors.Is(err, ride.ErrNotActive):
		c.JSON(http.StatusConflict, gin.H{"code": "RIDE_NOT_ACTIVE", "message": "Ride is not active"})
	case errors.Is(err, pricing.ErrNoActivePricing):
		c.JSON(http.StatusConflict, gin.H{"code": "NO_PRICING_CONFIGURED", "message": "No active pricing configured"})
	case errors.Is(err, coordinator.ErrUnlockFailed):
		c.JSON(http.StatusBadGateway, gin.H{"code": "UNLOCK_FAILED", "message": "Failed to unlock scooter"})
	case errors.Is(err, coordinator.ErrLockFailed):
		c.JSON(http.StatusBadGateway, gin.H{"code": "LOCK_FAILED", "message": "Failed to lock scooter; ride is still active"})
	case errors.Is(err, scooter.ErrInvalidBattery):
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_INPUT", "message": "Battery level must be between 0 and 100"})
	case errors.Is(err, pricing.ErrInvalidPrice):
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_INPUT", "message": "Prices must be positive"})
	default:
		middleware.GetLogger(c).ErrorContext(c, "request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
