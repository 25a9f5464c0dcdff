package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"soctel/internal/core/domain"
	"soctel/internal/core/ports"
	apperrors "soctel/pkg/errors"
	"soctel/pkg/utils"
)

type RegistryConfig struct {
	LivenessWindow time.Duration
	SweepInterval  time.Duration
}

// Registry tracks connected devices and routes their samples to the
// owning session. Devices are keyed by serial so a reconnect from the same
// hardware resumes the existing identity; the handshake token covers the
// case where the serial is unavailable.
type Registry struct {
	sessions ports.SessionService
	auth     DeviceAuthService
	cfg      RegistryConfig
	logger   *zap.SugaredLogger

	mu       sync.RWMutex
	devices  map[domain.DeviceID]*domain.Device
	bySerial map[string]domain.DeviceID
}

func NewRegistryService(
	sessions ports.SessionService,
	auth DeviceAuthService,
	cfg RegistryConfig,
	logger *zap.SugaredLogger,
) *Registry {
	return &Registry{
		sessions: sessions,
		auth:     auth,
		cfg:      cfg,
		logger:   logger,
		devices:  make(map[domain.DeviceID]*domain.Device),
		bySerial: make(map[string]domain.DeviceID),
	}
}

// maxLabelLen bounds device-supplied display labels.
const maxLabelLen = 64

func cleanLabel(s string) string {
	return utils.TruncateString(utils.SanitizeString(s), maxLabelLen)
}

func (r *Registry) Handshake(ctx context.Context, info domain.DeviceInfo) (*domain.Device, string, error) {
	info.Label = cleanLabel(info.Label)
	r.mu.Lock()

	now := time.Now()
	var device *domain.Device
	if id, ok := r.bySerial[info.Serial]; ok && info.Serial != "" {
		device = r.devices[id]
		device.LastSeen = now
		device.Label = info.Label
		device.Model = info.Model
		device.ReportsTemperature = info.ReportsTemperature
		device.ReportsGPU = info.ReportsGPU
	} else {
		device = &domain.Device{
			ID:                 domain.DeviceID(utils.GenerateDeviceID()),
			Serial:             info.Serial,
			Label:              info.Label,
			Model:              info.Model,
			ReportsTemperature: info.ReportsTemperature,
			ReportsGPU:         info.ReportsGPU,
			ConnectedAt:        now,
			LastSeen:           now,
		}
		r.devices[device.ID] = device
		if info.Serial != "" {
			r.bySerial[info.Serial] = device.ID
		}
	}
	r.mu.Unlock()

	token, err := r.auth.IssueToken(device.ID)
	if err != nil {
		return nil, "", fmt.Errorf("issue device token: %w", err)
	}

	r.logger.Infow("device handshake",
		"device_id", device.ID,
		"model", device.Model,
		"label", device.Label)

	return device, token, nil
}

// ResumeDevice restores a device identity from its handshake token. The
// token outlives the liveness window: a device that was swept can still
// come back as itself, it just lost its session.
func (r *Registry) ResumeDevice(ctx context.Context, token string) (*domain.Device, error) {
	claims, err := r.auth.ValidateToken(token)
	if err != nil {
		return nil, apperrors.NewUnauthorizedError("invalid device token")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	device, ok := r.devices[claims.DeviceID]
	if !ok {
		return nil, apperrors.NewStaleDeviceError(
			fmt.Sprintf("device %s is no longer registered", claims.DeviceID))
	}
	device.LastSeen = time.Now()
	return device, nil
}

func (r *Registry) Route(ctx context.Context, deviceID domain.DeviceID, sample domain.Sample) error {
	r.mu.Lock()
	device, ok := r.devices[deviceID]
	if ok {
		device.LastSeen = time.Now()
	}
	r.mu.Unlock()

	if !ok {
		return apperrors.NewStaleDeviceError(
			fmt.Sprintf("device %s is not registered", deviceID))
	}

	sessionID, active := r.sessions.ActiveForDevice(deviceID)
	if !active {
		return apperrors.NewNoActiveSessionError(
			fmt.Sprintf("device %s has no active session", deviceID))
	}

	sample.DeviceID = deviceID
	return r.sessions.Ingest(ctx, sessionID, sample)
}

// Disconnect records that the transport dropped. The session stays active:
// a reconnect inside the liveness window picks it back up, only the sweeper
// ends it.
func (r *Registry) Disconnect(ctx context.Context, deviceID domain.DeviceID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	device, ok := r.devices[deviceID]
	if !ok {
		return apperrors.NewNotFoundError("device")
	}
	device.LastSeen = time.Now()

	r.logger.Infow("device disconnected", "device_id", deviceID)
	return nil
}

func (r *Registry) UpdateCapabilities(ctx context.Context, deviceID domain.DeviceID, info domain.DeviceInfo) error {
	info.Label = cleanLabel(info.Label)
	r.mu.Lock()
	defer r.mu.Unlock()

	device, ok := r.devices[deviceID]
	if !ok {
		return apperrors.NewNotFoundError("device")
	}
	device.Label = info.Label
	device.Model = info.Model
	device.ReportsTemperature = info.ReportsTemperature
	device.ReportsGPU = info.ReportsGPU
	return nil
}

func (r *Registry) Devices(ctx context.Context) []*domain.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Device, 0, len(r.devices))
	for _, d := range r.devices {
		dup := *d
		out = append(out, &dup)
	}
	return out
}

// StartSweeper runs the liveness sweep until ctx is cancelled. A device
// silent past the liveness window has its active session force-ended so
// the rollup reflects only the data that actually arrived.
func (r *Registry) StartSweeper(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.SweepInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				r.sweep(ctx, now)
			}
		}
	}()
}

func (r *Registry) sweep(ctx context.Context, now time.Time) {
	r.mu.RLock()
	var stale []domain.DeviceID
	for id, d := range r.devices {
		if d.StaleSince(now, r.cfg.LivenessWindow) {
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range stale {
		sessionID, active := r.sessions.ActiveForDevice(id)
		if !active {
			continue
		}
		r.logger.Warnw("stale device, force-ending session",
			"device_id", id,
			"session_id", sessionID,
			"liveness_window", r.cfg.LivenessWindow)
		if _, err := r.sessions.End(ctx, sessionID); err != nil {
			r.logger.Errorw("force-end failed", "session_id", sessionID, "error", err)
		}
	}

	// A device silent for twice the window with no session left to end is
	// dropped so the maps do not grow without bound. Up to that point a
	// reconnect still resumes the old identity.
	r.mu.Lock()
	for id, d := range r.devices {
		if !d.StaleSince(now, 2*r.cfg.LivenessWindow) {
			continue
		}
		if _, active := r.sessions.ActiveForDevice(id); active {
			continue
		}
		delete(r.devices, id)
		if d.Serial != "" {
			delete(r.bySerial, d.Serial)
		}
		r.logger.Infow("pruned stale device", "device_id", id, "serial", d.Serial)
	}
	r.mu.Unlock()
}
