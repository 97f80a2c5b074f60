package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/voltride/fleetengine-backend/scooter"
)

var commandsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "device_commands_total",
		Help: "Device lock/unlock commands by outcome",
	},
	[]string{"command", "outcome"},
)

// RegisterMetrics registers the gateway's counters with a deployment's
// registry.
func RegisterMetrics(reg *prometheus.Registry) {
	reg.MustRegister(commandsTotal)
}

// LockStore is the registry view the gateway needs: current lock state for
// the no-op short circuit, and reconciliation after a positive ack.
type LockStore interface {
	Get(ctx context.Context, id uuid.UUID) (scooter.Scooter, error)
	SetLocked(ctx context.Context, id uuid.UUID, locked bool) error
}

// Gateway sends commands to scooter hardware. Timeouts are retried a bounded
// number of times with backoff; rejections fail immediately. The registry's
// lock state changes only after a positive acknowledgment.
type Gateway struct {
	channel  Channel
	scooters LockStore
	logger   *slog.Logger

	// Attempts, AttemptTimeout and Backoff default in NewGateway and may be
	// overridden before first use.
	Attempts       int
	AttemptTimeout time.Duration
	Backoff        time.Duration
}

func NewGateway(channel Channel, scooters LockStore, logger *slog.Logger) *Gateway {
	return &Gateway{
		channel:        channel,
		scooters:       scooters,
		logger:         logger,
		Attempts:       3,
		AttemptTimeout: 5 * time.Second,
		Backoff:        500 * time.Millisecond,
	}
}

// Send issues a lock or unlock command to the scooter. When the registry
// already shows the target lock state the command short-circuits as a
// success without touching hardware.
func (g *Gateway) Send(ctx context.Context, scooterID uuid.UUID, cmd Command) (Result, error) {
	if !cmd.Valid() {
		return Result{Message: fmt.Sprintf("unknown command %q", cmd)}, fmt.Errorf("unknown command %q", cmd)
	}

	sc, err := g.scooters.Get(ctx, scooterID)
	if err != nil {
		return Result{Message: "scooter not found"}, fmt.Errorf("get scooter: %w", err)
	}

	if sc.IsLocked == cmd.TargetLocked() {
		commandsTotal.WithLabelValues(string(cmd), "noop").Inc()
		return Result{
			Success: true,
			Message: fmt.Sprintf("scooter %s is already %sed", sc.SerialNumber, cmd),
		}, nil
	}

	for attempt := 1; attempt <= g.Attempts; attempt++ {
		err = g.issueOnce(ctx, sc.SerialNumber, cmd)
		if err == nil {
			if err := g.scooters.SetLocked(ctx, scooterID, cmd.TargetLocked()); err != nil {
				return Result{Message: "registry update failed"}, fmt.Errorf("reconcile lock state: %w", err)
			}
			commandsTotal.WithLabelValues(string(cmd), "success").Inc()
			return Result{
				Success: true,
				Message: fmt.Sprintf("scooter %s %s command acknowledged", sc.SerialNumber, cmd),
			}, nil
		}

		if !isTimeout(err) {
			// A rejection is a definitive answer from the device; retrying
			// will not change it.
			commandsTotal.WithLabelValues(string(cmd), "rejected").Inc()
			g.logger.Warn("device rejected command",
				"serial", sc.SerialNumber, "command", cmd, "error", err)
			return Result{
				Message: fmt.Sprintf("scooter %s rejected %s command", sc.SerialNumber, cmd),
			}, fmt.Errorf("issue %s to %s: %w", cmd, sc.SerialNumber, err)
		}

		g.logger.Warn("device command timed out",
			"serial", sc.SerialNumber, "command", cmd, "attempt", attempt)
		if attempt < g.Attempts {
			select {
			case <-time.After(g.Backoff * time.Duration(attempt)):
			case <-ctx.Done():
				commandsTotal.WithLabelValues(string(cmd), "timeout").Inc()
				return Result{Message: "command cancelled"}, ctx.Err()
			}
		}
	}

	commandsTotal.WithLabelValues(string(cmd), "timeout").Inc()
	return Result{
		Message: fmt.Sprintf("scooter %s did not acknowledge %s command", sc.SerialNumber, cmd),
	}, fmt.Errorf("issue %s to %s after %d attempts: %w", cmd, sc.SerialNumber, g.Attempts, ErrAckTimeout)
}

func (g *Gateway) issueOnce(ctx context.Context, serial string, cmd Command) error {
	actx, cancel := context.WithTimeout(ctx, g.AttemptTimeout)
	defer cancel()
	return g.channel.Issue(actx, serial, cmd)
}

func isTimeout(err error) bool {
	return errors.Is(err, ErrAckTimeout) || errors.Is(err, context.DeadlineExceeded)
}
