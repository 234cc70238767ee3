package core

import (
	"fmt"
	"strings"
	"time"
)

type QueueConfig struct {
	BatchSize      int           `koanf:"batch_size" mapstructure:"batch_size"`
	MaxAttempts    int           `koanf:"max_attempts" mapstructure:"max_attempts"`
	Lease          time.Duration `koanf:"lease" mapstructure:"lease"`
	PollInterval   time.Duration `koanf:"poll_interval" mapstructure:"poll_interval"`
	InitialBackoff time.Duration `koanf:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `koanf:"max_backoff" mapstructure:"max_backoff"`
}

type Config struct {
	ServiceName string      `koanf:"service_name" mapstructure:"service_name"`
	Queue       QueueConfig `koanf:"queue" mapstructure:"queue"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "inbox",
		Queue: QueueConfig{
			BatchSize:      50,
			MaxAttempts:    5,
			Lease:          60 * time.Second,
			PollInterval:   3 * time.Second,
			InitialBackoff: time.Second,
			MaxBackoff:     60 * time.Second,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Queue.BatchSize < 0 {
		return fmt.Errorf("core: queue.batch_size must be >= 0")
	}
	if c.Queue.MaxAttempts < 0 {
		return fmt.Errorf("core: queue.max_attempts must be >= 0")
	}
	if c.Queue.Lease < 0 || c.Queue.PollInterval < 0 {
		return fmt.Errorf("core: queue durations must be >= 0")
	}
	if c.Queue.InitialBackoff < 0 || c.Queue.MaxBackoff < 0 {
		return fmt.Errorf("core: queue backoff durations must be >= 0")
	}
	return nil
}
