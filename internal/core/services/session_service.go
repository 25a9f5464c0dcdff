package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"soctel/internal/core/domain"
	"soctel/internal/core/ports"
	"soctel/pkg/buffer"
	apperrors "soctel/pkg/errors"
	"soctel/pkg/retry"
	"soctel/pkg/utils"
)

type SessionBufferConfig struct {
	FlushSize     int
	FlushInterval time.Duration
	Capacity      int
}

// DropObserver is notified whenever an ingestion buffer sheds its oldest
// pending sample under the capacity cap.
type DropObserver interface {
	RecordSampleDropped()
}

// sessionBuffer pairs a session's ingestion buffer with the facts needed
// to validate samples against it.
type sessionBuffer struct {
	buf       *buffer.Buffer[domain.Sample]
	startTime time.Time
}

// sessionService drives the session lifecycle: idle -> active -> ended.
// It owns one ingestion buffer per active session so that storage writes
// are batched while live aggregation stays per-sample.
type sessionService struct {
	sessions  ports.SessionRepository
	samples   ports.SampleRepository
	agg       *Aggregator
	publisher ports.SnapshotPublisher
	drops     DropObserver
	bufCfg    SessionBufferConfig
	retryCfg  retry.Config
	logger    *zap.SugaredLogger

	mu      sync.RWMutex
	active  map[domain.DeviceID]domain.SessionID
	buffers map[domain.SessionID]*sessionBuffer
}

// NewSessionService builds the session lifecycle service. drops may be nil
// when dropped-sample accounting is not needed.
func NewSessionService(
	sessions ports.SessionRepository,
	samples ports.SampleRepository,
	agg *Aggregator,
	publisher ports.SnapshotPublisher,
	drops DropObserver,
	bufCfg SessionBufferConfig,
	logger *zap.SugaredLogger,
) ports.SessionService {
	return &sessionService{
		sessions:  sessions,
		samples:   samples,
		agg:       agg,
		publisher: publisher,
		drops:     drops,
		bufCfg:    bufCfg,
		retryCfg:  retry.DefaultConfig(),
		logger:    logger,
		active:    make(map[domain.DeviceID]domain.SessionID),
		buffers:   make(map[domain.SessionID]*sessionBuffer),
	}
}

func (s *sessionService) Start(ctx context.Context, deviceID domain.DeviceID, scenario string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.active[deviceID]; ok {
		return nil, apperrors.NewConflictError(
			fmt.Sprintf("device %s already has active session %s", deviceID, existing))
	}

	session := &domain.Session{
		ID:        domain.SessionID(utils.GenerateSessionID()),
		DeviceID:  deviceID,
		Scenario:  scenario,
		State:     domain.StateActive,
		StartTime: time.Now(),
	}

	if err := s.sessions.Upsert(ctx, session); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}

	sessionID := session.ID
	buf := buffer.New[domain.Sample](
		s.bufCfg.FlushSize,
		s.bufCfg.FlushInterval,
		s.bufCfg.Capacity,
		func(ctx context.Context, batch []domain.Sample) error {
			return s.flushBatch(ctx, sessionID, batch)
		},
		func(sample domain.Sample) {
			if snap := s.agg.Update(sample); snap != nil {
				s.publisher.Publish(snap)
			}
		},
	)

	s.active[deviceID] = sessionID
	s.buffers[sessionID] = &sessionBuffer{buf: buf, startTime: session.StartTime}
	s.agg.Track(sessionID)

	s.logger.Infow("session started",
		"session_id", sessionID,
		"device_id", deviceID,
		"scenario", scenario)

	return session, nil
}

// flushBatch is the buffer's persistence path. Transient storage failures
// are retried; the batch is redelivered as-is so appends stay ordered.
func (s *sessionService) flushBatch(ctx context.Context, sessionID domain.SessionID, batch []domain.Sample) error {
	err := retry.Retry(ctx, s.retryCfg, func() error {
		return s.samples.Append(ctx, sessionID, batch)
	})
	if err != nil {
		s.logger.Errorw("sample batch flush failed",
			"session_id", sessionID,
			"batch_size", len(batch),
			"error", err)
	}
	return err
}

func (s *sessionService) Ingest(ctx context.Context, sessionID domain.SessionID, sample domain.Sample) error {
	s.mu.RLock()
	entry, ok := s.buffers[sessionID]
	s.mu.RUnlock()

	if !ok {
		session, err := s.sessions.GetByID(ctx, sessionID)
		if err != nil {
			return apperrors.NewNotFoundError("session")
		}
		if session.State == domain.StateEnded {
			return apperrors.NewInvalidStateError(
				fmt.Sprintf("session %s has ended", sessionID))
		}
		return apperrors.NewInvalidStateError(
			fmt.Sprintf("session %s is not accepting samples", sessionID))
	}

	// A sample cannot predate the session it belongs to.
	if sample.Timestamp.Before(entry.startTime) {
		return apperrors.NewInvalidInputError(
			fmt.Sprintf("sample timestamp %s predates session start %s",
				sample.Timestamp.Format(time.RFC3339),
				entry.startTime.Format(time.RFC3339)))
	}

	sample.SessionID = sessionID
	if entry.buf.Offer(sample) {
		if s.drops != nil {
			s.drops.RecordSampleDropped()
		}
		s.logger.Warnw("ingestion buffer over capacity, oldest sample dropped",
			"session_id", sessionID,
			"error", apperrors.NewCapacityExceededError(
				fmt.Sprintf("session %s buffer hard cap reached", sessionID)))
	}
	return nil
}

// End finalizes a session. Ending an already-ended session returns it
// unchanged. The buffer is drained before the rollup is computed so every
// accepted sample counts.
func (s *sessionService) End(ctx context.Context, sessionID domain.SessionID) (*domain.Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, apperrors.NewNotFoundError("session")
	}
	if session.State == domain.StateEnded {
		return session, nil
	}

	s.mu.Lock()
	entry := s.buffers[sessionID]
	delete(s.buffers, sessionID)
	delete(s.active, session.DeviceID)
	s.mu.Unlock()

	var dropped int64
	if entry != nil {
		if err := entry.buf.Drain(ctx); err != nil {
			s.logger.Errorw("final drain failed", "session_id", sessionID, "error", err)
		}
		entry.buf.Stop()
		if dropped = entry.buf.Dropped(); dropped > 0 {
			s.logger.Warnw("samples dropped under backpressure",
				"session_id", sessionID, "dropped", dropped)
		}
	}

	now := time.Now()
	session.EndTime = &now
	session.State = domain.StateEnded
	session.Completed = true

	stored, err := s.samples.Get(ctx, sessionID, domain.TimeRange{})
	if err != nil {
		s.logger.Errorw("rollup sample read failed", "session_id", sessionID, "error", err)
	} else {
		session.Rollup = BuildRollup(session, stored, s.agg.cfg)
		if session.Rollup != nil {
			session.Rollup.DroppedSamples = dropped
		}
	}

	if err := s.sessions.Upsert(ctx, session); err != nil {
		return nil, fmt.Errorf("persist ended session: %w", err)
	}

	s.agg.Drop(sessionID)
	s.publisher.CloseSession(sessionID)

	s.logger.Infow("session ended",
		"session_id", sessionID,
		"device_id", session.DeviceID,
		"sample_count", func() int {
			if session.Rollup != nil {
				return session.Rollup.SampleCount
			}
			return 0
		}())

	return session, nil
}

func (s *sessionService) Get(ctx context.Context, sessionID domain.SessionID) (*domain.Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, apperrors.NewNotFoundError("session")
	}
	return session, nil
}

func (s *sessionService) List(ctx context.Context) ([]*domain.Session, error) {
	return s.sessions.List(ctx)
}

func (s *sessionService) ActiveForDevice(deviceID domain.DeviceID) (domain.SessionID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.active[deviceID]
	return id, ok
}

func (s *sessionService) LiveSnapshot(sessionID domain.SessionID) (*domain.AggregateSnapshot, error) {
	snap, err := s.agg.Snapshot(sessionID)
	if err == nil {
		s.mu.RLock()
		if entry, ok := s.buffers[sessionID]; ok {
			snap.DroppedSamples = entry.buf.Dropped()
		}
		s.mu.RUnlock()
		return snap, nil
	}

	session, repoErr := s.sessions.GetByID(context.Background(), sessionID)
	if repoErr != nil {
		return nil, apperrors.NewNotFoundError("session")
	}
	if session.State == domain.StateEnded {
		return nil, apperrors.NewInvalidStateError(
			fmt.Sprintf("session %s has ended", sessionID))
	}
	return nil, apperrors.NewNotFoundError("session snapshot")
}
