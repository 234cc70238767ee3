package query

import (
	"context"

	"github.com/goliatone/go-inbox/core"
)

type GetEventQuery struct {
	reader core.EventReader
}

func NewGetEventQuery(reader core.EventReader) *GetEventQuery {
	return &GetEventQuery{reader: reader}
}

func (q *GetEventQuery) Query(ctx context.Context, msg GetEventMessage) (core.Event, error) {
	if q == nil || q.reader == nil {
		return core.Event{}, queryDependencyError("query: event reader is required")
	}
	if err := msg.Validate(); err != nil {
		return core.Event{}, queryWrapValidation(err, "query: invalid get event message")
	}
	return q.reader.GetEvent(ctx, msg.EventID)
}

type ListEventsQuery struct {
	reader core.EventReader
}

func NewListEventsQuery(reader core.EventReader) *ListEventsQuery {
	return &ListEventsQuery{reader: reader}
}

func (q *ListEventsQuery) Query(ctx context.Context, msg ListEventsMessage) ([]core.Event, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: event reader is required")
	}
	if err := msg.Validate(); err != nil {
		return nil, queryWrapValidation(err, "query: invalid list events message")
	}
	return q.reader.ListEvents(ctx, msg.Filter)
}
