package ports

import (
	"context"

	"soctel/internal/core/domain"
)

type SessionService interface {
	Start(ctx context.Context, deviceID domain.DeviceID, scenario string) (*domain.Session, error)
	Ingest(ctx context.Context, sessionID domain.SessionID, sample domain.Sample) error
	End(ctx context.Context, sessionID domain.SessionID) (*domain.Session, error)
	Get(ctx context.Context, sessionID domain.SessionID) (*domain.Session, error)
	List(ctx context.Context) ([]*domain.Session, error)
	ActiveForDevice(deviceID domain.DeviceID) (domain.SessionID, bool)
	LiveSnapshot(sessionID domain.SessionID) (*domain.AggregateSnapshot, error)
}

type RegistryService interface {
	Handshake(ctx context.Context, info domain.DeviceInfo) (*domain.Device, string, error)
	ResumeDevice(ctx context.Context, token string) (*domain.Device, error)
	Route(ctx context.Context, deviceID domain.DeviceID, sample domain.Sample) error
	Disconnect(ctx context.Context, deviceID domain.DeviceID) error
	UpdateCapabilities(ctx context.Context, deviceID domain.DeviceID, info domain.DeviceInfo) error
	Devices(ctx context.Context) []*domain.Device
}

type ExportService interface {
	ExportJSON(ctx context.Context, sessionID domain.SessionID) ([]byte, error)
	ExportCSV(ctx context.Context, sessionID domain.SessionID) ([]byte, error)
	TextReport(ctx context.Context, sessionID domain.SessionID) (string, error)
	FileName(base, ext string) string
}

// SnapshotPublisher pushes live snapshots toward subscribers without the core
// depending on any delivery mechanism.
type SnapshotPublisher interface {
	Publish(snapshot *domain.AggregateSnapshot)
	CloseSession(sessionID domain.SessionID)
}
