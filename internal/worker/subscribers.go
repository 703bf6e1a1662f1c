package worker

import (
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

// StartEventSubscribers attaches the in-process consumers of domain events.
// A nil publisher leaves events local to this process.
func StartEventSubscribers(dispatcher events.Dispatcher, notifications *service.NotificationService, publisher *events.RedisPublisher, logger *zap.Logger) {
	if dispatcher == nil {
		return
	}
	if notifications != nil {
		notifications.RegisterHandlers()
	}
	if publisher != nil {
		publisher.Register(dispatcher)
		logger.Info("forwarding events to redis")
	}
}
