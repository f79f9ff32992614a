package repository

// Backend names where decoded signal values come from.
type Backend string

const (
	BackendNone      Backend = "none"
	BackendWebSocket Backend = "websocket"
	BackendKafka     Backend = "kafka"
	BackendSerial    Backend = "serial"
)

// IsValidBackend returns true if b is a supported ingest backend.
func IsValidBackend(b Backend) bool {
	switch b {
	case BackendNone, BackendWebSocket, BackendKafka, BackendSerial:
		return true
	default:
		return false
	}
}

// DefaultBackend returns the backend used when none is configured.
func DefaultBackend() Backend { return BackendWebSocket }

// NormalizeBackend converts a raw string to a valid backend (or the default).
func NormalizeBackend(s string) Backend {
	if s == "" {
		return DefaultBackend()
	}
	b := Backend(s)
	if IsValidBackend(b) {
		return b
	}
	return DefaultBackend()
}
