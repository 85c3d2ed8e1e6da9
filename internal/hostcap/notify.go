package hostcap

import "log/slog"

// MessageType mirrors the LSP window message severities.
type MessageType int

// Message severities.
const (
	MessageError   MessageType = 1
	MessageWarning MessageType = 2
	MessageInfo    MessageType = 3
	MessageLog     MessageType = 4
)

// Notifier delivers messages to the host.
type Notifier interface {
	// ShowMessage asks the host to display text to the user.
	ShowMessage(t MessageType, text string)
	// LogMessage asks the host to log text without interrupting the user.
	LogMessage(t MessageType, text string)
}

// LogNotifier sends every message to a slog logger. Used when there is no
// JSON-RPC peer, e.g. from the CLI.
type LogNotifier struct {
	Logger *slog.Logger
}

// ShowMessage implements Notifier.
func (n LogNotifier) ShowMessage(t MessageType, text string) {
	n.log(t, text)
}

// LogMessage implements Notifier.
func (n LogNotifier) LogMessage(t MessageType, text string) {
	n.log(t, text)
}

func (n LogNotifier) log(t MessageType, text string) {
	if n.Logger == nil {
		return
	}
	switch t {
	case MessageError:
		n.Logger.Error(text)
	case MessageWarning:
		n.Logger.Warn(text)
	case MessageInfo:
		n.Logger.Info(text)
	default:
		n.Logger.Debug(text)
	}
}

// Discard drops all messages.
type Discard struct{}

// ShowMessage implements Notifier.
func (Discard) ShowMessage(MessageType, string) {}

// LogMessage implements Notifier.
func (Discard) LogMessage(MessageType, string) {}
