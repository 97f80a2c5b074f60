// Package device abstracts the lock/unlock command channel to scooter
// hardware and reconciles acknowledged commands with the fleet registry.
package device

import (
	"context"
	"errors"

	"github.com/goccy/go-json"
)

type Command string

const (
	CommandLock   Command = "lock"
	CommandUnlock Command = "unlock"
)

func (c Command) Valid() bool {
	return c == CommandLock || c == CommandUnlock
}

// TargetLocked is the lock state the command drives the device towards.
func (c Command) TargetLocked() bool {
	return c == CommandLock
}

func (c *Command) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	cmd := Command(s)
	if !cmd.Valid() {
		return errors.New("command must be \"lock\" or \"unlock\"")
	}
	*c = cmd
	return nil
}

// Result is what callers see for a command, success or not.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

var (
	// ErrAckTimeout: the device never acknowledged within the attempt
	// window. The command may or may not have been applied; the registry is
	// left untouched.
	ErrAckTimeout = errors.New("command acknowledgment timed out")
	// ErrCommandRejected: the device positively refused the command.
	ErrCommandRejected = errors.New("command rejected by device")
)

// Channel is the hardware transport. Issue blocks until the device
// acknowledges, the context expires, or the transport fails. An ambiguous
// outcome must surface as an error, never as silent success.
type Channel interface {
	Issue(ctx context.Context, serial string, cmd Command) error
}

// ChannelFunc adapts a function to the Channel interface.
type ChannelFunc func(ctx context.Context, serial string, cmd Command) error

func (f ChannelFunc) Issue(ctx context.Context, serial string, cmd Command) error {
	return f(ctx, serial, cmd)
}
