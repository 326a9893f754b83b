package cache

import (
	"fmt"
	"log/slog"
)

// NewStore creates a store for the configured backend: "bolt", "memory" or
// "disabled".
func NewStore(backend, path string, logger *slog.Logger) (Store, error) {
	switch backend {
	case "bolt":
		logger.Info("using persistent cache", "path", path)
		return OpenBoltStore(path)
	case "memory":
		logger.Info("using memory cache")
		return NewMemoryStore(), nil
	case "disabled":
		logger.Info("cache disabled")
		return NewNoopStore(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend: %s (supported: bolt, memory, disabled)", backend)
	}
}
