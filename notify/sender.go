package notify

import (
	"context"

	"go.uber.org/zap"
)

// Sender delivers a drained outbox message to the outside world (email,
// push, ...). Implementations must treat delivery as best-effort.
type Sender interface {
	Send(ctx context.Context, topic string, payload []byte) error
}

// LogSender is the default Sender: it records the notification instead of
// delivering it, which is enough for environments without a mail relay.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, topic string, payload []byte) error {
	s.logger.Info("notification dispatched",
		zap.String("topic", topic),
		zap.ByteString("payload", payload))
	return nil
}
