package query

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-inbox/core"
)

const (
	TypeGetEvent   = "inbox.query.event.get"
	TypeListEvents = "inbox.query.event.list"
)

type GetEventMessage struct {
	EventID string
}

func (GetEventMessage) Type() string { return TypeGetEvent }

func (m GetEventMessage) Validate() error {
	if strings.TrimSpace(m.EventID) == "" {
		return fmt.Errorf("query: event id is required")
	}
	return nil
}

type ListEventsMessage struct {
	Filter core.EventFilter
}

func (ListEventsMessage) Type() string { return TypeListEvents }

func (m ListEventsMessage) Validate() error {
	if m.Filter.Limit < 0 {
		return fmt.Errorf("query: limit must be >= 0")
	}
	if m.Filter.Status != "" && !m.Filter.Status.Valid() {
		return fmt.Errorf("query: unknown status %q", string(m.Filter.Status))
	}
	return nil
}
