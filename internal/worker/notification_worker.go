package worker

import (
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-triage/internal/events"
	"github.com/spec-kit/ticket-triage/internal/service"
)

// StartNotificationWorker registers notification handlers and, when a
// publisher is given, forwards every triage event to it.
func StartNotificationWorker(notificationService *service.NotificationService, dispatcher events.Dispatcher, publisher *events.NATSPublisher, logger *zap.Logger) {
	if notificationService != nil {
		notificationService.RegisterHandlers()
	}
	if publisher != nil && dispatcher != nil {
		publisher.Register(dispatcher)
		if logger != nil {
			logger.Info("forwarding triage events to NATS")
		}
	}
}
