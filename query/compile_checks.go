package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-inbox/core"
)

var (
	_ gocmd.Querier[GetEventMessage, core.Event]     = (*GetEventQuery)(nil)
	_ gocmd.Querier[ListEventsMessage, []core.Event] = (*ListEventsQuery)(nil)
)
