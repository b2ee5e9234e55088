package httpapi

import "time"

// Config defines the debug HTTP surface settings.
type Config struct {
	Addr     string
	BasePath string
	// HubHistory bounds the events replayed to reconnecting stream clients.
	HubHistory int
	// ShutdownTimeout bounds the graceful drain once the serve context ends.
	ShutdownTimeout time.Duration
}

const defaultShutdownTimeout = 5 * time.Second

func (c Config) shutdownTimeout() time.Duration {
	if c.ShutdownTimeout <= 0 {
		return defaultShutdownTimeout
	}
	return c.ShutdownTimeout
}
