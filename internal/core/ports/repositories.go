package ports

import (
	"context"
	"time"

	"soctel/internal/core/domain"
)

type SessionRepository interface {
	Upsert(ctx context.Context, session *domain.Session) error
	GetByID(ctx context.Context, id domain.SessionID) (*domain.Session, error)
	List(ctx context.Context) ([]*domain.Session, error)
	Delete(ctx context.Context, id domain.SessionID) error
}

type SampleRepository interface {
	Append(ctx context.Context, sessionID domain.SessionID, samples []domain.Sample) error
	Get(ctx context.Context, sessionID domain.SessionID, r domain.TimeRange) ([]domain.Sample, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) error
}
