package distributed

import (
	"context"

	"go.uber.org/zap"

	"soctel/internal/core/domain"
	"soctel/internal/core/ports"
)

// SessionEventsWrapper decorates a SessionService so lifecycle transitions
// are announced on the event bus. Event publication is best effort and
// never fails the underlying operation.
type SessionEventsWrapper struct {
	ports.SessionService
	events *EventBus
	logger *zap.SugaredLogger
}

func NewSessionEventsWrapper(service ports.SessionService, events *EventBus, logger *zap.SugaredLogger) *SessionEventsWrapper {
	return &SessionEventsWrapper{
		SessionService: service,
		events:         events,
		logger:         logger,
	}
}

func (w *SessionEventsWrapper) Start(ctx context.Context, deviceID domain.DeviceID, scenario string) (*domain.Session, error) {
	session, err := w.SessionService.Start(ctx, deviceID, scenario)
	if err != nil {
		return nil, err
	}
	if err := w.events.PublishSessionStarted(ctx, session.ID, deviceID); err != nil {
		w.logger.Warnw("failed to publish session started event",
			"session_id", session.ID, "error", err)
	}
	return session, nil
}

func (w *SessionEventsWrapper) End(ctx context.Context, sessionID domain.SessionID) (*domain.Session, error) {
	session, err := w.SessionService.End(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := w.events.PublishSessionEnded(ctx, session.ID, session.DeviceID); err != nil {
		w.logger.Warnw("failed to publish session ended event",
			"session_id", session.ID, "error", err)
	}
	return session, nil
}
