package inbox

import "github.com/goliatone/go-inbox/core"

type Config = core.Config

type QueueConfig = core.QueueConfig

type Event = core.Event
type EventStatus = core.EventStatus
type EventType = core.EventType
type EventFilter = core.EventFilter
type Outcome = core.Outcome
type PassStats = core.PassStats

type InboundMessage = core.InboundMessage
type RegistrationRequest = core.RegistrationRequest

type EventStore = core.EventStore
type EventReader = core.EventReader
type StoreProvider = core.StoreProvider
type MessageHandler = core.MessageHandler
type RetractionHandler = core.RetractionHandler
type RegistrationHandler = core.RegistrationHandler
type RateLimitGate = core.RateLimitGate

type ConfigProvider = core.ConfigProvider
type OptionsResolver = core.OptionsResolver

func DefaultConfig() Config {
	return core.DefaultConfig()
}
