package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[IngestCallbackMessage] = (*IngestCallbackCommand)(nil)
	_ gocmd.Commander[IngestEventsMessage]   = (*IngestEventsCommand)(nil)
	_ gocmd.Commander[KickMessage]           = (*KickCommand)(nil)
	_ gocmd.Commander[DrainMessage]          = (*DrainCommand)(nil)
)
