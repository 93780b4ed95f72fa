package model

// Status is the lifecycle position of a consumer.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusPaused       Status = "paused"
)

// ConsumerState is the snapshot exposed to observers whenever status or error changes.
type ConsumerState struct {
	Status Status `json:"status"`
	// Cursor is the time_us of the last processed event, zero until one is seen.
	Cursor int64 `json:"cursor,omitempty"`
	Err    error `json:"-"`
	// IntentionalDisconnect is set by Pause and cleared by Start/Resume.
	IntentionalDisconnect bool `json:"intentional_disconnect"`
	ReconnectAttempts     int  `json:"reconnect_attempts"`
}

// ErrorMessage is a convenience for renderers.
func (s ConsumerState) ErrorMessage() string {
	if s.Err == nil {
		return ""
	}
	return s.Err.Error()
}
