// ABOUTME: Transport abstraction for delivering channel notifications
// ABOUTME: Defines the payload shape and the transport selection policy

package comms

import (
	"context"
	"errors"
	"time"
)

// ErrMissingLocal is returned when the local transport is selected but
// none was configured.
var ErrMissingLocal = errors.New("no local transport is configured")

// Transport modes accepted by the dispatcher. ModeAuto defers to the
// LOCAL_DEVELOPMENT environment policy.
const (
	ModeAuto  = "auto"
	ModeLocal = "local"
	ModeCloud = "cloud"
)

// NotificationPayload is the JSON body POSTed to the agent endpoint's
// /message route, by both transports.
type NotificationPayload struct {
	UserID  string `json:"user_id"`
	Channel string `json:"channel"`
	Message string `json:"message"`
	Sender  string `json:"sender"`
}

// Transport delivers a notification payload to the agent service,
// optionally at a future time. Implementations own their durability
// semantics: Local holds scheduled sends in process memory, Cloud hands
// them to a task queue.
type Transport interface {
	// Name identifies the transport in logs and results.
	Name() string

	// Deliver sends or schedules the payload. A nil runAt (or one in the
	// past) means deliver now.
	Deliver(ctx context.Context, payload NotificationPayload, runAt *time.Time) error
}
