// Package coordinator owns the ride lifecycle state machine: starting,
// ending and cancelling rides while keeping scooter state, ride records and
// the physical lock consistent.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/voltride/fleetengine-backend/device"
	"github.com/voltride/fleetengine-backend/pricing"
	"github.com/voltride/fleetengine-backend/ride"
	"github.com/voltride/fleetengine-backend/scooter"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUnlockFailed = errors.New("failed to unlock scooter")
	ErrLockFailed   = errors.New("failed to lock scooter")
)

// ScooterStore is the fleet registry surface the coordinator mutates.
type ScooterStore interface {
	Get(ctx context.Context, id uuid.UUID) (scooter.Scooter, error)
	TryReserve(ctx context.Context, id uuid.UUID) error
	CommitInUse(ctx context.Context, id uuid.UUID) error
	Release(ctx context.Context, id uuid.UUID) error
}

type RideStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (ride.Ride, error)
	HasActiveForUser(ctx context.Context, userID uuid.UUID) (bool, error)
	CreateActive(ctx context.Context, r *ride.Ride) error
	Complete(ctx context.Context, id uuid.UUID, p ride.Completion) (ride.Ride, error)
	Cancel(ctx context.Context, id uuid.UUID) (ride.Ride, error)
}

type PricingStore interface {
	ActiveRule(ctx context.Context) (pricing.Rule, error)
}

// UserDirectory is the external user collaborator.
type UserDirectory interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

type CommandGateway interface {
	Send(ctx context.Context, scooterID uuid.UUID, cmd device.Command) (device.Result, error)
}

type Coordinator struct {
	scooters ScooterStore
	rides    RideStore
	pricing  PricingStore
	users    UserDirectory
	gateway  CommandGateway
	logger   *slog.Logger
	tracer   trace.Tracer

	// Per-entity serialization. StartRide takes the user key then the
	// scooter key; EndRide/CancelRide take only the scooter key, so the
	// acquisition order is acyclic.
	userLocks    *keyedMutex
	scooterLocks *keyedMutex
}

func New(scooters ScooterStore, rides RideStore, pricingStore PricingStore, users UserDirectory, gateway CommandGateway, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		scooters:     scooters,
		rides:        rides,
		pricing:      pricingStore,
		users:        users,
		gateway:      gateway,
		logger:       logger,
		tracer:       otel.Tracer("coordinator"),
		userLocks:    newKeyedMutex(),
		scooterLocks: newKeyedMutex(),
	}
}

// StartRide validates rider and scooter, reserves the scooter, unlocks the
// hardware and persists the active ride. Every failure after the
// reservation rolls the scooter back to available; no partial state
// survives.
func (c *Coordinator) StartRide(ctx context.Context, userID, scooterID uuid.UUID, startLat, startLon scooter.Coordinate) (ride.Ride, error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.StartRide")
	defer span.End()

	unlockUser := c.userLocks.lock(userID)
	defer unlockUser()
	unlockScooter := c.scooterLocks.lock(scooterID)
	defer unlockScooter()

	exists, err := c.users.Exists(ctx, userID)
	if err != nil {
		return ride.Ride{}, fmt.Errorf("check user: %w", err)
	}
	if !exists {
		return ride.Ride{}, ErrUserNotFound
	}

	if _, err := c.scooters.Get(ctx, scooterID); err != nil {
		return ride.Ride{}, fmt.Errorf("get scooter: %w", err)
	}

	riding, err := c.rides.HasActiveForUser(ctx, userID)
	if err != nil {
		return ride.Ride{}, fmt.Errorf("check active ride: %w", err)
	}
	if riding {
		return ride.Ride{}, ride.ErrUserAlreadyRiding
	}

	if err := c.scooters.TryReserve(ctx, scooterID); err != nil {
		return ride.Ride{}, fmt.Errorf("reserve scooter: %w", err)
	}

	// Reservation held. Caller cancellation is honored up to here; once a
	// command reaches the hardware the transition runs to completion so no
	// inconsistent state is left behind.
	if err := ctx.Err(); err != nil {
		c.rollbackReservation(context.WithoutCancel(ctx), scooterID, false)
		return ride.Ride{}, err
	}
	opCtx := context.WithoutCancel(ctx)

	if _, err := c.gateway.Send(opCtx, scooterID, device.CommandUnlock); err != nil {
		c.rollbackReservation(opCtx, scooterID, false)
		return ride.Ride{}, fmt.Errorf("%w: %v", ErrUnlockFailed, err)
	}

	if err := c.scooters.CommitInUse(opCtx, scooterID); err != nil {
		c.rollbackReservation(opCtx, scooterID, true)
		return ride.Ride{}, fmt.Errorf("commit scooter in use: %w", err)
	}

	r := &ride.Ride{
		ID:             uuid.New(),
		UserID:         userID,
		ScooterID:      scooterID,
		Status:         ride.StatusActive,
		StartLatitude:  startLat,
		StartLongitude: startLon,
	}
	if err := c.rides.CreateActive(opCtx, r); err != nil {
		c.rollbackReservation(opCtx, scooterID, true)
		if errors.Is(err, ride.ErrUserAlreadyRiding) {
			return ride.Ride{}, err
		}
		return ride.Ride{}, fmt.Errorf("persist ride: %w", err)
	}

	c.logger.Info("ride started", "rideId", r.ID, "userId", userID, "scooterId", scooterID)
	return *r, nil
}

// rollbackReservation undoes a TryReserve. If the hardware may already be
// unlocked a best-effort lock command goes out first; either way the scooter
// returns to the available pool.
func (c *Coordinator) rollbackReservation(ctx context.Context, scooterID uuid.UUID, relock bool) {
	if relock {
		if _, err := c.gateway.Send(ctx, scooterID, device.CommandLock); err != nil {
			c.logger.Error("rollback: failed to relock scooter", "scooterId", scooterID, "error", err)
		}
	}
	if err := c.scooters.Release(ctx, scooterID); err != nil {
		c.logger.Error("rollback: failed to release scooter", "scooterId", scooterID, "error", err)
	}
}

// EndRide computes the fare, locks the hardware and completes the ride. The
// lock command goes out before the ride is marked completed so billing is
// never finalized while the device is still unlocked; on lock failure the
// ride stays active for a retry.
func (c *Coordinator) EndRide(ctx context.Context, rideID uuid.UUID, endLat, endLon scooter.Coordinate, distanceKm float64, durationMinutes int) (ride.Ride, error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.EndRide")
	defer span.End()

	r, err := c.rides.GetByID(ctx, rideID)
	if err != nil {
		return ride.Ride{}, fmt.Errorf("load ride: %w", err)
	}

	unlockScooter := c.scooterLocks.lock(r.ScooterID)
	defer unlockScooter()

	// Re-read under the scooter lock: a concurrent end or cancel may have
	// finished the ride between the load above and the lock acquisition.
	r, err = c.rides.GetByID(ctx, rideID)
	if err != nil {
		return ride.Ride{}, fmt.Errorf("load ride: %w", err)
	}
	if r.Status != ride.StatusActive {
		return ride.Ride{}, ride.ErrNotActive
	}

	rule, err := c.pricing.ActiveRule(ctx)
	if err != nil {
		// The ride stays active; the caller may retry once pricing is
		// configured.
		return ride.Ride{}, fmt.Errorf("resolve pricing: %w", err)
	}
	cost := rule.Fare(durationMinutes)

	if err := ctx.Err(); err != nil {
		return ride.Ride{}, err
	}
	opCtx := context.WithoutCancel(ctx)

	if _, err := c.gateway.Send(opCtx, r.ScooterID, device.CommandLock); err != nil {
		return ride.Ride{}, fmt.Errorf("%w: %v", ErrLockFailed, err)
	}

	completed, err := c.rides.Complete(opCtx, rideID, ride.Completion{
		EndLatitude:     endLat,
		EndLongitude:    endLon,
		DistanceKm:      distanceKm,
		DurationMinutes: durationMinutes,
		TotalCost:       cost,
	})
	if err != nil {
		return ride.Ride{}, fmt.Errorf("complete ride: %w", err)
	}

	if err := c.scooters.Release(opCtx, r.ScooterID); err != nil {
		// The ride is already terminal; surface the inconsistency loudly
		// rather than unwinding billing.
		c.logger.Error("failed to release scooter after ride completion",
			"rideId", rideID, "scooterId", r.ScooterID, "error", err)
		return completed, fmt.Errorf("release scooter: %w", err)
	}

	c.logger.Info("ride completed",
		"rideId", rideID, "scooterId", r.ScooterID, "totalCost", cost, "durationMinutes", durationMinutes)
	return completed, nil
}

// CancelRide aborts an active ride without fare computation. The lock
// command is best effort: the scooter returns to the pool even if the
// device cannot be reached, and operators see the failure in the log.
func (c *Coordinator) CancelRide(ctx context.Context, rideID uuid.UUID) (ride.Ride, error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.CancelRide")
	defer span.End()

	r, err := c.rides.GetByID(ctx, rideID)
	if err != nil {
		return ride.Ride{}, fmt.Errorf("load ride: %w", err)
	}

	unlockScooter := c.scooterLocks.lock(r.ScooterID)
	defer unlockScooter()

	r, err = c.rides.GetByID(ctx, rideID)
	if err != nil {
		return ride.Ride{}, fmt.Errorf("load ride: %w", err)
	}
	if r.Status != ride.StatusActive {
		return ride.Ride{}, ride.ErrNotActive
	}

	opCtx := context.WithoutCancel(ctx)

	if _, err := c.gateway.Send(opCtx, r.ScooterID, device.CommandLock); err != nil {
		c.logger.Error("cancel: failed to lock scooter", "rideId", rideID, "scooterId", r.ScooterID, "error", err)
	}

	cancelled, err := c.rides.Cancel(opCtx, rideID)
	if err != nil {
		return ride.Ride{}, fmt.Errorf("cancel ride: %w", err)
	}

	if err := c.scooters.Release(opCtx, r.ScooterID); err != nil {
		c.logger.Error("cancel: failed to release scooter", "rideId", rideID, "scooterId", r.ScooterID, "error", err)
		return cancelled, fmt.Errorf("release scooter: %w", err)
	}

	c.logger.Info("ride cancelled", "rideId", rideID, "scooterId", r.ScooterID)
	return cancelled, nil
}
