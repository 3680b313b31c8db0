package notifications

// Alert levels
const (
	LevelInfo      = "info"
	LevelSuccess   = "success"
	LevelWarning   = "warning"
	LevelError     = "error"
	LevelEmergency = "emergency"
)

// Notifier defines the interface for notification services
type Notifier interface {
	// SendAlert sends an alert with the specified level and message
	SendAlert(level, message string) error
}

// Nop discards every alert
type Nop struct{}

// SendAlert implements Notifier
func (Nop) SendAlert(level, message string) error { return nil }
