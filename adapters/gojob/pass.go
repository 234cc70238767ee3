package gojob

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-inbox/core"
)

// QueueController is the runner surface pass jobs drive.
type QueueController interface {
	Kick(ctx context.Context) <-chan struct{}
	WaitIdle(timeout time.Duration) bool
}

// NewProcessPassMessage builds the execution message that schedules one
// processing pass. The idempotency key collapses duplicate triggers inside
// one dedup window.
func NewProcessPassMessage(idempotencyKey string) *core.JobExecutionMessage {
	return &core.JobExecutionMessage{
		JobID:          JobIDProcessPass,
		IdempotencyKey: idempotencyKey,
		DedupPolicy:    "drop",
	}
}

// PassJobExecutor consumes process-pass deliveries: it kicks the queue
// controller, waits for the pass to finish, then acks. Unknown job ids are
// nacked without requeue.
type PassJobExecutor struct {
	controller QueueController
	policy     RetryPolicy
}

func NewPassJobExecutor(controller QueueController, policy RetryPolicy) (*PassJobExecutor, error) {
	if controller == nil {
		return nil, fmt.Errorf("gojob: queue controller is required")
	}
	return &PassJobExecutor{controller: controller, policy: policy}, nil
}

func (e *PassJobExecutor) Execute(ctx context.Context, delivery core.JobDelivery) error {
	if e == nil || e.controller == nil {
		return fmt.Errorf("gojob: pass executor is not configured")
	}
	if delivery == nil {
		return fmt.Errorf("gojob: delivery is required")
	}
	msg := delivery.Message()
	if msg == nil || msg.JobID != JobIDProcessPass {
		jobID := ""
		if msg != nil {
			jobID = msg.JobID
		}
		return delivery.Nack(ctx, core.JobNackOptions{
			Requeue:    false,
			DeadLetter: true,
			Reason:     fmt.Sprintf("unexpected job id %q", jobID),
		})
	}

	done := e.controller.Kick(ctx)
	select {
	case <-done:
		return delivery.Ack(ctx)
	case <-ctx.Done():
		return delivery.Nack(ctx, core.JobNackOptions{
			Requeue: true,
			Reason:  "pass interrupted by shutdown",
		})
	}
}
