// ABOUTME: Cloud transport enqueuing notifications on Google Cloud Tasks
// ABOUTME: Responsibility ends once the task is accepted by the queue

package comms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	cloudtasks "cloud.google.com/go/cloudtasks/apiv2"
	taskspb "cloud.google.com/go/cloudtasks/apiv2/cloudtaskspb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

const (
	cloudUserAgent = "everlight-agents/messaging"
	messagesQueue  = "messages"
)

// ErrMissingProject is returned when the cloud transport is selected but
// no GCP project is configured.
var ErrMissingProject = errors.New("GOOGLE_CLOUD_PROJECT is not set; cloud transport cannot be used")

// CloudTransport enqueues notifications as HTTP tasks on the "messages"
// queue. Scheduled sends become the queue's problem once accepted.
type CloudTransport struct {
	client       *cloudtasks.Client
	project      string
	location     string
	endpointURL  string
	serviceToken string
	logger       *slog.Logger
}

// NewCloudTransport creates a cloud transport. Returns ErrMissingProject
// when project is empty; an empty serviceToken means no auth header.
func NewCloudTransport(ctx context.Context, project, location, endpointURL, serviceToken string) (*CloudTransport, error) {
	if project == "" {
		return nil, ErrMissingProject
	}
	if location == "" {
		location = "us-west1"
	}

	client, err := cloudtasks.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating cloud tasks client: %w", err)
	}

	return &CloudTransport{
		client:       client,
		project:      project,
		location:     location,
		endpointURL:  endpointURL,
		serviceToken: serviceToken,
		logger:       slog.Default().With("component", "comms", "transport", "cloud"),
	}, nil
}

func (t *CloudTransport) Name() string { return ModeCloud }

// Deliver enqueues one task. A future runAt becomes the task's
// schedule_time, normalized to UTC.
func (t *CloudTransport) Deliver(ctx context.Context, payload NotificationPayload, runAt *time.Time) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	headers := map[string]string{
		"Content-Type": "application/json",
		"User-Agent":   cloudUserAgent,
	}
	if t.serviceToken != "" {
		headers["Authorization"] = "Bearer " + t.serviceToken
	}

	task := &taskspb.Task{
		MessageType: &taskspb.Task_HttpRequest{
			HttpRequest: &taskspb.HttpRequest{
				HttpMethod: taskspb.HttpMethod_POST,
				Url:        t.endpointURL + "/message",
				Headers:    headers,
				Body:       body,
			},
		},
	}
	if runAt != nil {
		task.ScheduleTime = timestamppb.New(runAt.UTC())
	}

	parent := fmt.Sprintf("projects/%s/locations/%s/queues/%s", t.project, t.location, messagesQueue)
	resp, err := t.client.CreateTask(ctx, &taskspb.CreateTaskRequest{
		Parent: parent,
		Task:   task,
	})
	if err != nil {
		return fmt.Errorf("enqueuing message task: %w", err)
	}

	t.logger.Info("enqueued message task", "task", resp.GetName(), "channel", payload.Channel)
	return nil
}

// Close releases the underlying Cloud Tasks client.
func (t *CloudTransport) Close() error {
	return t.client.Close()
}

var _ Transport = (*CloudTransport)(nil)
