package command

import (
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-inbox/core"
)

const (
	TypeIngestCallback = "inbox.command.ingest.callback"
	TypeIngestEvents   = "inbox.command.ingest.events"
	TypeKick           = "inbox.command.queue.kick"
	TypeDrain          = "inbox.command.queue.drain"
)

// IngestCallbackMessage carries one raw webhook delivery plus its platform
// signature.
type IngestCallbackMessage struct {
	Body      []byte
	Signature string
}

func (IngestCallbackMessage) Type() string { return TypeIngestCallback }

func (m IngestCallbackMessage) Validate() error {
	if len(m.Body) == 0 {
		return fmt.Errorf("command: callback body is required")
	}
	return nil
}

// IngestEventsMessage persists already-parsed event rows.
type IngestEventsMessage struct {
	Events []core.Event
}

func (IngestEventsMessage) Type() string { return TypeIngestEvents }

func (m IngestEventsMessage) Validate() error {
	if len(m.Events) == 0 {
		return fmt.Errorf("command: at least one event is required")
	}
	for i, event := range m.Events {
		if strings.TrimSpace(event.ExternalEventID) == "" {
			return fmt.Errorf("command: event %d is missing an external event id", i)
		}
	}
	return nil
}

// KickMessage triggers a processing pass if none is running. Wait blocks the
// command until the pass completes.
type KickMessage struct {
	Wait bool
}

func (KickMessage) Type() string { return TypeKick }

func (KickMessage) Validate() error { return nil }

// DrainMessage performs a bounded idle wait, used by the shutdown sequence.
type DrainMessage struct {
	Timeout time.Duration
}

func (DrainMessage) Type() string { return TypeDrain }

func (m DrainMessage) Validate() error {
	if m.Timeout < 0 {
		return fmt.Errorf("command: drain timeout must be >= 0")
	}
	return nil
}
