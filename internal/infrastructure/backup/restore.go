package backup

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"soctel/internal/core/domain"
	"soctel/internal/core/ports"
	"soctel/pkg/backup"
)

// RestoreService handles restore operations
type RestoreService struct {
	backupService *backup.BackupService
	sessionRepo   ports.SessionRepository
	sampleRepo    ports.SampleRepository
	logger        *zap.SugaredLogger
}

// NewRestoreService creates a new restore service
func NewRestoreService(
	backupService *backup.BackupService,
	sessionRepo ports.SessionRepository,
	sampleRepo ports.SampleRepository,
	logger *zap.SugaredLogger,
) *RestoreService {
	return &RestoreService{
		backupService: backupService,
		sessionRepo:   sessionRepo,
		sampleRepo:    sampleRepo,
		logger:        logger,
	}
}

// RestoreOptions contains restore options
type RestoreOptions struct {
	OverwriteExisting bool
	RestoreSessions   bool
	RestoreSamples    bool
}

// DefaultRestoreOptions returns default restore options
func DefaultRestoreOptions() RestoreOptions {
	return RestoreOptions{
		OverwriteExisting: false,
		RestoreSessions:   true,
		RestoreSamples:    true,
	}
}

// RestoreFromBackup restores data from a specific backup
func (rs *RestoreService) RestoreFromBackup(ctx context.Context, backupName string, options RestoreOptions) error {
	rs.logger.Infow("starting restore", "backup_name", backupName)

	backupData, err := rs.backupService.RestoreBackup(ctx, backupName)
	if err != nil {
		return fmt.Errorf("failed to load backup: %w", err)
	}

	if backupData.Version == "" {
		return fmt.Errorf("invalid backup: missing version")
	}

	if options.RestoreSessions {
		if err := rs.restoreSessions(ctx, backupData.Sessions, options); err != nil {
			return fmt.Errorf("failed to restore sessions: %w", err)
		}
	}

	if options.RestoreSamples {
		if err := rs.restoreSamples(ctx, backupData.Samples); err != nil {
			return fmt.Errorf("failed to restore samples: %w", err)
		}
	}

	rs.logger.Infow("restore completed successfully", "backup_name", backupName)
	return nil
}

func (rs *RestoreService) restoreSessions(ctx context.Context, sessions map[string]interface{}, options RestoreOptions) error {
	for id, raw := range sessions {
		session, err := decodeInto[domain.Session](raw)
		if err != nil {
			rs.logger.Warnw("skipping malformed session in backup", "session_id", id, "error", err)
			continue
		}

		if !options.OverwriteExisting {
			if _, err := rs.sessionRepo.GetByID(ctx, session.ID); err == nil {
				continue
			}
		}

		if err := rs.sessionRepo.Upsert(ctx, session); err != nil {
			return fmt.Errorf("failed to restore session %s: %w", id, err)
		}
	}
	return nil
}

func (rs *RestoreService) restoreSamples(ctx context.Context, samples map[string]interface{}) error {
	for id, raw := range samples {
		list, err := decodeInto[[]domain.Sample](raw)
		if err != nil {
			rs.logger.Warnw("skipping malformed samples in backup", "session_id", id, "error", err)
			continue
		}
		if len(*list) == 0 {
			continue
		}
		// Append replaces by device and timestamp, so restore over
		// existing data never duplicates.
		if err := rs.sampleRepo.Append(ctx, domain.SessionID(id), *list); err != nil {
			return fmt.Errorf("failed to restore samples for session %s: %w", id, err)
		}
	}
	return nil
}

// decodeInto round-trips a backup value through JSON into a concrete type.
func decodeInto[T any](raw interface{}) (*T, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
