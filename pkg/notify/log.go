package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogNotifier writes notifications to the log, for headless setups.
type LogNotifier struct {
	log *zap.SugaredLogger
}

func NewLogNotifier(log *zap.SugaredLogger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, message string) error {
	n.log.Info(message)
	return nil
}
