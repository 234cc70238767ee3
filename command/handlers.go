package command

import (
	"context"
	"time"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-inbox/core"
)

// Ingestor is the ingestion surface the commands execute against.
type Ingestor interface {
	IngestCallback(ctx context.Context, body []byte, signature string) (int, error)
	Ingest(ctx context.Context, events []core.Event) (int, error)
}

// QueueController is the runner surface for kick and drain.
type QueueController interface {
	Kick(ctx context.Context) <-chan struct{}
	WaitIdle(timeout time.Duration) bool
}

type IngestCallbackCommand struct {
	ingestor Ingestor
}

func NewIngestCallbackCommand(ingestor Ingestor) *IngestCallbackCommand {
	return &IngestCallbackCommand{ingestor: ingestor}
}

func (c *IngestCallbackCommand) Execute(ctx context.Context, msg IngestCallbackMessage) error {
	if c == nil || c.ingestor == nil {
		return commandDependencyError("command: ingestor is required")
	}
	if err := msg.Validate(); err != nil {
		return commandWrapValidation(err, "command: invalid ingest callback message")
	}
	inserted, err := c.ingestor.IngestCallback(ctx, msg.Body, msg.Signature)
	if err != nil {
		return err
	}
	storeResult(ctx, inserted)
	return nil
}

type IngestEventsCommand struct {
	ingestor Ingestor
}

func NewIngestEventsCommand(ingestor Ingestor) *IngestEventsCommand {
	return &IngestEventsCommand{ingestor: ingestor}
}

func (c *IngestEventsCommand) Execute(ctx context.Context, msg IngestEventsMessage) error {
	if c == nil || c.ingestor == nil {
		return commandDependencyError("command: ingestor is required")
	}
	if err := msg.Validate(); err != nil {
		return commandWrapValidation(err, "command: invalid ingest events message")
	}
	inserted, err := c.ingestor.Ingest(ctx, msg.Events)
	if err != nil {
		return err
	}
	storeResult(ctx, inserted)
	return nil
}

type KickCommand struct {
	controller QueueController
}

func NewKickCommand(controller QueueController) *KickCommand {
	return &KickCommand{controller: controller}
}

func (c *KickCommand) Execute(ctx context.Context, msg KickMessage) error {
	if c == nil || c.controller == nil {
		return commandDependencyError("command: queue controller is required")
	}
	done := c.controller.Kick(ctx)
	if !msg.Wait {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type DrainCommand struct {
	controller QueueController
}

func NewDrainCommand(controller QueueController) *DrainCommand {
	return &DrainCommand{controller: controller}
}

func (c *DrainCommand) Execute(ctx context.Context, msg DrainMessage) error {
	if c == nil || c.controller == nil {
		return commandDependencyError("command: queue controller is required")
	}
	if err := msg.Validate(); err != nil {
		return commandWrapValidation(err, "command: invalid drain message")
	}
	storeResult(ctx, c.controller.WaitIdle(msg.Timeout))
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
