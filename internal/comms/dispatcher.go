// ABOUTME: Dispatcher persisting messages before handing them to a transport
// ABOUTME: Record now, deliver best effort; a failed delivery keeps the row

package comms

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tommyyliu/everlight-agents/internal/store"
)

// Send statuses reported in a Result.
const (
	StatusSent  = "message_sent"
	StatusError = "error"
)

// SendRequest describes one message send.
type SendRequest struct {
	UserID  uuid.UUID
	Channel string
	Message string
	Sender  string
	RunAt   *time.Time
	// Mode overrides transport selection: ModeLocal or ModeCloud.
	// Empty or ModeAuto follows the configured default.
	Mode string
}

// Result reports the outcome of a send in a shape tools can render
// directly to an agent.
type Result struct {
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	MessageID uuid.UUID `json:"message_id,omitempty"`
}

// Dispatcher persists every outbound message and then delivers it via the
// selected transport. Persistence gates delivery: a message that cannot
// be recorded is never sent. A message that is recorded but fails to
// deliver stays recorded.
type Dispatcher struct {
	store        store.Store
	local        Transport
	cloud        Transport
	defaultLocal bool
	logger       *slog.Logger
}

// NewDispatcher creates a dispatcher. cloud may be nil when no cloud
// transport is configured; defaultLocal controls which transport auto
// mode selects.
func NewDispatcher(st store.Store, local, cloud Transport, defaultLocal bool) *Dispatcher {
	return &Dispatcher{
		store:        st,
		local:        local,
		cloud:        cloud,
		defaultLocal: defaultLocal,
		logger:       slog.Default().With("component", "dispatcher"),
	}
}

// Send records the message and hands it to a transport. The message row
// stands even when delivery fails.
func (d *Dispatcher) Send(ctx context.Context, req SendRequest) Result {
	msg := &store.Message{
		UserID: req.UserID,
		Sender: req.Sender,
		Payload: store.MessagePayload{
			Channel: req.Channel,
			Message: req.Message,
		},
	}

	if err := d.store.SaveMessage(ctx, msg); err != nil {
		d.logger.Error("failed to persist message", "channel", req.Channel, "error", err)
		return Result{Status: StatusError, Reason: "failed to record message: " + err.Error()}
	}

	transport, err := d.selectTransport(req.Mode)
	if err != nil {
		d.logger.Error("transport unavailable", "mode", req.Mode, "error", err)
		return Result{Status: StatusError, Reason: err.Error(), MessageID: msg.ID}
	}

	payload := NotificationPayload{
		UserID:  req.UserID.String(),
		Channel: req.Channel,
		Message: req.Message,
		Sender:  req.Sender,
	}
	if err := transport.Deliver(ctx, payload, req.RunAt); err != nil {
		d.logger.Error("delivery failed",
			"transport", transport.Name(),
			"channel", req.Channel,
			"error", err)
		return Result{Status: StatusError, Reason: err.Error(), MessageID: msg.ID}
	}

	d.logger.Info("message dispatched",
		"transport", transport.Name(),
		"channel", req.Channel,
		"sender", req.Sender,
		"scheduled", req.RunAt != nil)
	return Result{Status: StatusSent, MessageID: msg.ID}
}

func (d *Dispatcher) selectTransport(mode string) (Transport, error) {
	switch mode {
	case ModeLocal:
		if d.local == nil {
			return nil, ErrMissingLocal
		}
		return d.local, nil
	case ModeCloud:
		if d.cloud == nil {
			return nil, ErrMissingProject
		}
		return d.cloud, nil
	}
	if d.defaultLocal {
		if d.local == nil {
			return nil, ErrMissingLocal
		}
		return d.local, nil
	}
	if d.cloud == nil {
		return nil, ErrMissingProject
	}
	return d.cloud, nil
}
