package workspace

import "log/slog"

// Publisher receives workspace lifecycle events. *hermes.Client satisfies
// it; a nil Publisher disables events.
type Publisher interface {
	Publish(subject string, data any) error
}

type notifier struct {
	pub    Publisher
	logger *slog.Logger
}

func (n notifier) emit(subject string, data any) {
	if n.pub == nil {
		return
	}
	if err := n.pub.Publish(subject, data); err != nil {
		n.logger.Warn("failed to publish event", "subject", subject, "error", err)
	}
}
