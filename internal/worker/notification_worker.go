package worker

import (
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/events"
	"github.com/spec-kit/sla-engine/internal/notify"
	"github.com/spec-kit/sla-engine/internal/service"
)

// StartNotificationWorker registers the SLA event subscribers on dispatcher.
// The Kafka publisher is optional.
func StartNotificationWorker(dispatcher events.Dispatcher, notificationService *service.NotificationService, kafka *notify.KafkaPublisher, logger *zap.Logger) {
	if notificationService != nil {
		notificationService.RegisterHandlers()
		logger.Info("sla notification handlers registered")
	}
	if kafka != nil && dispatcher != nil {
		kafka.Register(dispatcher)
		logger.Info("sla kafka publisher registered")
	}
}
