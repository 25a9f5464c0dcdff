package backup

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"soctel/internal/core/domain"
	"soctel/internal/core/ports"
	"soctel/pkg/backup"
	"soctel/pkg/utils"
)

// Scheduler manages automatic backups of session and sample data
type Scheduler struct {
	backupService *backup.BackupService
	sessionRepo   ports.SessionRepository
	sampleRepo    ports.SampleRepository
	interval      time.Duration
	retentionDays int
	logger        *zap.SugaredLogger
	stopChan      chan struct{}
}

// Config contains scheduler configuration
type Config struct {
	Interval      time.Duration
	RetentionDays int
}

// NewScheduler creates a new backup scheduler
func NewScheduler(
	backupService *backup.BackupService,
	sessionRepo ports.SessionRepository,
	sampleRepo ports.SampleRepository,
	cfg Config,
	logger *zap.SugaredLogger,
) *Scheduler {
	return &Scheduler{
		backupService: backupService,
		sessionRepo:   sessionRepo,
		sampleRepo:    sampleRepo,
		interval:      cfg.Interval,
		retentionDays: cfg.RetentionDays,
		logger:        logger,
		stopChan:      make(chan struct{}),
	}
}

// Start starts the backup scheduler
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run initial backup
	s.runBackup(ctx)

	for {
		select {
		case <-ticker.C:
			s.runBackup(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop stops the backup scheduler
func (s *Scheduler) Stop() {
	close(s.stopChan)
}

// runBackup performs a backup
func (s *Scheduler) runBackup(ctx context.Context) {
	s.logger.Info("starting scheduled backup")
	start := time.Now()

	backupData, err := s.collectData(ctx)
	if err != nil {
		s.logger.Errorw("failed to collect backup data", "error", err)
		return
	}

	backupName, err := s.backupService.CreateBackup(ctx, backupData)
	if err != nil {
		s.logger.Errorw("failed to create backup", "error", err)
		return
	}

	s.logger.Infow("backup created successfully",
		"backup_name", backupName,
		"took", utils.FormatDuration(time.Since(start)))

	if err := s.cleanupOldBackups(ctx); err != nil {
		s.logger.Warnw("failed to cleanup old backups", "error", err)
	}
}

// collectData collects sessions and, for ended sessions, their samples
func (s *Scheduler) collectData(ctx context.Context) (*backup.BackupData, error) {
	data := &backup.BackupData{
		Sessions: make(map[string]interface{}),
		Samples:  make(map[string]interface{}),
		Metadata: make(map[string]interface{}),
	}

	sessions, err := s.sessionRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	sampleCount := 0
	for _, session := range sessions {
		data.Sessions[string(session.ID)] = session

		// Active sessions are still receiving data; only ended
		// sessions have a stable sample set worth archiving.
		if session.State != domain.StateEnded {
			continue
		}

		samples, err := s.sampleRepo.Get(ctx, session.ID, domain.TimeRange{})
		if err != nil {
			s.logger.Warnw("failed to read samples for session",
				"session_id", session.ID, "error", err)
			continue
		}
		data.Samples[string(session.ID)] = samples
		sampleCount += len(samples)
	}

	data.Metadata["session_count"] = len(data.Sessions)
	data.Metadata["sample_count"] = sampleCount
	data.Metadata["backup_type"] = "scheduled"

	return data, nil
}

// cleanupOldBackups removes backups older than retention period
func (s *Scheduler) cleanupOldBackups(ctx context.Context) error {
	backups, err := s.backupService.ListBackups(ctx)
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}

	retention := time.Duration(s.retentionDays) * 24 * time.Hour

	for _, backupName := range backups {
		// Parse timestamp from backup name (format: backup-20060102-150405.json)
		if len(backupName) < 22 {
			continue
		}

		timestampStr := backupName[7:22]
		timestamp, err := time.Parse("20060102-150405", timestampStr)
		if err != nil {
			s.logger.Warnw("failed to parse backup timestamp", "backup_name", backupName, "error", err)
			continue
		}

		if utils.IsExpired(timestamp, retention) {
			if err := s.backupService.DeleteBackup(ctx, backupName); err != nil {
				s.logger.Warnw("failed to delete old backup", "backup_name", backupName, "error", err)
				continue
			}
			s.logger.Infow("deleted old backup", "backup_name", backupName, "age", time.Since(timestamp))
		}
	}

	return nil
}
