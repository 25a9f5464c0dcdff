package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"soctel/internal/core/domain"
	apperrors "soctel/pkg/errors"
)

// stubSessionService records routed samples and force-ended sessions.
type stubSessionService struct {
	mu       sync.Mutex
	active   map[domain.DeviceID]domain.SessionID
	ingested []domain.Sample
	ended    []domain.SessionID
}

func newStubSessionService() *stubSessionService {
	return &stubSessionService{active: make(map[domain.DeviceID]domain.SessionID)}
}

func (s *stubSessionService) Start(ctx context.Context, deviceID domain.DeviceID, scenario string) (*domain.Session, error) {
	return nil, nil
}

func (s *stubSessionService) Ingest(ctx context.Context, sessionID domain.SessionID, sample domain.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sample.SessionID = sessionID
	s.ingested = append(s.ingested, sample)
	return nil
}

func (s *stubSessionService) End(ctx context.Context, sessionID domain.SessionID) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for dev, id := range s.active {
		if id == sessionID {
			delete(s.active, dev)
		}
	}
	s.ended = append(s.ended, sessionID)
	return &domain.Session{ID: sessionID, State: domain.StateEnded}, nil
}

func (s *stubSessionService) Get(ctx context.Context, sessionID domain.SessionID) (*domain.Session, error) {
	return nil, domain.ErrSessionNotFound
}

func (s *stubSessionService) List(ctx context.Context) ([]*domain.Session, error) {
	return nil, nil
}

func (s *stubSessionService) ActiveForDevice(deviceID domain.DeviceID) (domain.SessionID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.active[deviceID]
	return id, ok
}

func (s *stubSessionService) LiveSnapshot(sessionID domain.SessionID) (*domain.AggregateSnapshot, error) {
	return nil, domain.ErrSessionNotFound
}

func newTestRegistry(sessions *stubSessionService) *Registry {
	return NewRegistryService(
		sessions,
		NewDeviceAuthService("test-secret", time.Hour),
		RegistryConfig{LivenessWindow: 30 * time.Second, SweepInterval: 5 * time.Second},
		zap.NewNop().Sugar(),
	)
}

func TestRegistry_HandshakeIssuesResumableToken(t *testing.T) {
	reg := newTestRegistry(newStubSessionService())
	ctx := context.Background()

	device, token, err := reg.Handshake(ctx, domain.DeviceInfo{
		Serial: "SN-001",
		Label:  "bench phone",
		Model:  "Pixel 9",
	})
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.NotEmpty(t, device.ID)
	assert.Equal(t, "Pixel 9", device.Model)

	resumed, err := reg.ResumeDevice(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, device.ID, resumed.ID)
}

func TestRegistry_HandshakeReusesSerialIdentity(t *testing.T) {
	reg := newTestRegistry(newStubSessionService())
	ctx := context.Background()

	first, _, err := reg.Handshake(ctx, domain.DeviceInfo{Serial: "SN-001", Model: "Pixel 9"})
	require.NoError(t, err)

	second, _, err := reg.Handshake(ctx, domain.DeviceInfo{Serial: "SN-001", Model: "Pixel 9 Pro"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Pixel 9 Pro", second.Model)
	assert.Len(t, reg.Devices(ctx), 1)
}

func TestRegistry_HandshakeWithoutSerialAlwaysNew(t *testing.T) {
	reg := newTestRegistry(newStubSessionService())
	ctx := context.Background()

	first, _, err := reg.Handshake(ctx, domain.DeviceInfo{})
	require.NoError(t, err)
	second, _, err := reg.Handshake(ctx, domain.DeviceInfo{})
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
}

func TestRegistry_ResumeDeviceBadToken(t *testing.T) {
	reg := newTestRegistry(newStubSessionService())

	_, err := reg.ResumeDevice(context.Background(), "not-a-token")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeUnauthorized, apperrors.GetAppError(err).Code)
}

func TestRegistry_ResumeUnknownDevice(t *testing.T) {
	reg := newTestRegistry(newStubSessionService())

	// A token from a registry that no longer knows the device.
	auth := NewDeviceAuthService("test-secret", time.Hour)
	token, err := auth.IssueToken("dev_gone")
	require.NoError(t, err)

	_, err = reg.ResumeDevice(context.Background(), token)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeStaleDevice, apperrors.GetAppError(err).Code)
}

func TestRegistry_RouteRequiresActiveSession(t *testing.T) {
	sessions := newStubSessionService()
	reg := newTestRegistry(sessions)
	ctx := context.Background()

	device, _, err := reg.Handshake(ctx, domain.DeviceInfo{Serial: "SN-001"})
	require.NoError(t, err)

	err = reg.Route(ctx, device.ID, domain.Sample{Level: 90})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeNoActiveSession, apperrors.GetAppError(err).Code)

	sessions.active[device.ID] = "sess_1"
	require.NoError(t, reg.Route(ctx, device.ID, domain.Sample{Level: 89}))

	sessions.mu.Lock()
	defer sessions.mu.Unlock()
	require.Len(t, sessions.ingested, 1)
	assert.Equal(t, domain.SessionID("sess_1"), sessions.ingested[0].SessionID)
	assert.Equal(t, device.ID, sessions.ingested[0].DeviceID)
}

func TestRegistry_RouteUnknownDevice(t *testing.T) {
	reg := newTestRegistry(newStubSessionService())

	err := reg.Route(context.Background(), "dev_unknown", domain.Sample{})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeStaleDevice, apperrors.GetAppError(err).Code)
}

func TestRegistry_DisconnectKeepsSession(t *testing.T) {
	sessions := newStubSessionService()
	reg := newTestRegistry(sessions)
	ctx := context.Background()

	device, _, err := reg.Handshake(ctx, domain.DeviceInfo{Serial: "SN-001"})
	require.NoError(t, err)
	sessions.active[device.ID] = "sess_1"

	require.NoError(t, reg.Disconnect(ctx, device.ID))

	// Disconnect is not session end; only the sweeper ends sessions.
	sessions.mu.Lock()
	defer sessions.mu.Unlock()
	assert.Empty(t, sessions.ended)
}

func TestRegistry_SweepForceEndsStaleSessions(t *testing.T) {
	sessions := newStubSessionService()
	reg := newTestRegistry(sessions)
	ctx := context.Background()

	device, _, err := reg.Handshake(ctx, domain.DeviceInfo{Serial: "SN-001"})
	require.NoError(t, err)
	sessions.active[device.ID] = "sess_1"

	// Inside the liveness window nothing happens.
	reg.sweep(ctx, time.Now())
	sessions.mu.Lock()
	assert.Empty(t, sessions.ended)
	sessions.mu.Unlock()

	// Past the window the session is force-ended.
	reg.sweep(ctx, time.Now().Add(time.Minute))
	sessions.mu.Lock()
	defer sessions.mu.Unlock()
	assert.Equal(t, []domain.SessionID{"sess_1"}, sessions.ended)
}

func TestRegistry_SweepPrunesLongStaleDevices(t *testing.T) {
	sessions := newStubSessionService()
	reg := newTestRegistry(sessions)
	ctx := context.Background()

	device, token, err := reg.Handshake(ctx, domain.DeviceInfo{Serial: "SN-001"})
	require.NoError(t, err)

	// Past the liveness window but not twice it: the entry survives, so a
	// late reconnect can still resume the old identity.
	reg.sweep(ctx, time.Now().Add(45*time.Second))
	require.Len(t, reg.Devices(ctx), 1)
	resumed, err := reg.ResumeDevice(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, device.ID, resumed.ID)

	// Silent for over twice the window with no active session: pruned.
	reg.devices[device.ID].LastSeen = time.Now().Add(-2 * time.Minute)
	reg.sweep(ctx, time.Now())
	assert.Empty(t, reg.Devices(ctx))

	_, err = reg.ResumeDevice(ctx, token)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeStaleDevice, apperrors.GetAppError(err).Code)

	// The serial slot is free again: a fresh handshake mints a new identity.
	replacement, _, err := reg.Handshake(ctx, domain.DeviceInfo{Serial: "SN-001"})
	require.NoError(t, err)
	assert.NotEqual(t, device.ID, replacement.ID)
}

func TestRegistry_SweepEndsSessionBeforePruning(t *testing.T) {
	sessions := newStubSessionService()
	reg := newTestRegistry(sessions)
	ctx := context.Background()

	device, _, err := reg.Handshake(ctx, domain.DeviceInfo{Serial: "SN-001"})
	require.NoError(t, err)
	sessions.active[device.ID] = "sess_1"

	// Long-silent device with a session still open: the sweep force-ends the
	// session first, so the rollup is written before the entry goes away.
	reg.devices[device.ID].LastSeen = time.Now().Add(-3 * time.Minute)
	reg.sweep(ctx, time.Now())

	sessions.mu.Lock()
	assert.Equal(t, []domain.SessionID{"sess_1"}, sessions.ended)
	sessions.mu.Unlock()
	assert.Empty(t, reg.Devices(ctx))
}

func TestRegistry_UpdateCapabilities(t *testing.T) {
	reg := newTestRegistry(newStubSessionService())
	ctx := context.Background()

	device, _, err := reg.Handshake(ctx, domain.DeviceInfo{Serial: "SN-001"})
	require.NoError(t, err)

	err = reg.UpdateCapabilities(ctx, device.ID, domain.DeviceInfo{
		Label:              "renamed",
		Model:              "Pixel 9",
		ReportsTemperature: true,
		ReportsGPU:         true,
	})
	require.NoError(t, err)

	devices := reg.Devices(ctx)
	require.Len(t, devices, 1)
	assert.Equal(t, "renamed", devices[0].Label)
	assert.True(t, devices[0].ReportsTemperature)
	assert.True(t, devices[0].ReportsGPU)

	err = reg.UpdateCapabilities(ctx, "dev_unknown", domain.DeviceInfo{})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetAppError(err).Code)
}
