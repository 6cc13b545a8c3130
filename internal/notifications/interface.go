package notifications

// Notifier delivers operator alerts.
type Notifier interface {
	// SendAlert sends an alert with the specified level and message.
	SendAlert(level, message string) error
}

// NopNotifier discards alerts; used when no channel is configured.
type NopNotifier struct{}

func (NopNotifier) SendAlert(string, string) error { return nil }
