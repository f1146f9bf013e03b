// ABOUTME: Local transport delivering notifications by direct HTTP call
// ABOUTME: Scheduled sends run on an in-process timer, lost on restart

package comms

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const localUserAgent = "everlight-agents/messaging-local"

// LocalTransport posts payloads straight to the agent endpoint. Intended
// for development: scheduled deliveries live on in-process timers and do
// not survive a restart.
type LocalTransport struct {
	endpointURL string
	client      *http.Client
	logger      *slog.Logger
}

// NewLocalTransport creates a local transport targeting the given agent
// endpoint base URL (e.g. http://localhost:8001).
func NewLocalTransport(endpointURL string) *LocalTransport {
	return &LocalTransport{
		endpointURL: endpointURL,
		client:      &http.Client{Timeout: 30 * time.Second},
		logger:      slog.Default().With("component", "comms", "transport", "local"),
	}
}

func (t *LocalTransport) Name() string { return ModeLocal }

// Deliver posts the payload immediately, or arms a timer when runAt is in
// the future. Once accepted, delivery failures are logged and not
// surfaced to the caller.
func (t *LocalTransport) Deliver(ctx context.Context, payload NotificationPayload, runAt *time.Time) error {
	if runAt != nil {
		delay := time.Until(*runAt)
		if delay < 0 {
			delay = 0
		}
		t.logger.Info("scheduling message delivery",
			"channel", payload.Channel,
			"run_at", runAt.UTC().Format(time.RFC3339),
			"delay", delay)
		time.AfterFunc(delay, func() {
			t.post(context.Background(), payload)
		})
		return nil
	}

	t.post(ctx, payload)
	return nil
}

func (t *LocalTransport) post(ctx context.Context, payload NotificationPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		t.logger.Error("failed to encode payload", "error", err)
		return
	}

	url := t.endpointURL + "/message"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		t.logger.Error("failed to build request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", localUserAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		t.logger.Error("failed to deliver message", "url", url, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		t.logger.Error("message delivery rejected",
			"url", url,
			"status", resp.StatusCode,
			"body", string(respBody))
		return
	}

	t.logger.Info("message delivered", "url", url, "channel", payload.Channel)
}

var _ Transport = (*LocalTransport)(nil)
