package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"soctel/internal/core/domain"
	"soctel/pkg/distributed"
)

// SharedDeviceRegistry records which instance owns each device connection.
// Live snapshots only exist on the owning instance, so anything that wants
// to reach a device's session has to look up the owner here first.
type SharedDeviceRegistry struct {
	client      *redis.Client
	lockManager *distributed.LockManager
	instanceID  string
	logger      *zap.SugaredLogger
	prefix      string
	ttl         time.Duration
}

type deviceRecord struct {
	Device       *domain.Device `json:"device"`
	InstanceID   string         `json:"instance_id"`
	RegisteredAt int64          `json:"registered_at"`
}

// NewSharedDeviceRegistry creates a new shared device registry
func NewSharedDeviceRegistry(
	client *redis.Client,
	instanceID string,
	logger *zap.SugaredLogger,
) *SharedDeviceRegistry {
	return &SharedDeviceRegistry{
		client:      client,
		lockManager: distributed.NewLockManager(client, "soctel:lock:"),
		instanceID:  instanceID,
		logger:      logger,
		prefix:      "soctel:device:",
		ttl:         5 * time.Minute,
	}
}

func (r *SharedDeviceRegistry) deviceKey(id domain.DeviceID) string {
	return r.prefix + string(id)
}

func (r *SharedDeviceRegistry) instanceDevicesKey(instanceID string) string {
	return fmt.Sprintf("soctel:instance:%s:devices", instanceID)
}

// RegisterDevice claims a device for this instance. The lock closes the race
// where a device reconnects to a second instance before the first noticed
// the drop.
func (r *SharedDeviceRegistry) RegisterDevice(ctx context.Context, device *domain.Device) error {
	lock := r.lockManager.AcquireLock("device:"+string(device.ID), 10*time.Second)
	if err := lock.Lock(ctx); err != nil {
		return fmt.Errorf("failed to lock device registration: %w", err)
	}
	defer lock.Unlock(ctx)

	record := deviceRecord{
		Device:       device,
		InstanceID:   r.instanceID,
		RegisteredAt: time.Now().Unix(),
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal device record: %w", err)
	}

	key := r.deviceKey(device.ID)
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to register device: %w", err)
	}

	instanceKey := r.instanceDevicesKey(r.instanceID)
	if err := r.client.SAdd(ctx, instanceKey, string(device.ID)).Err(); err != nil {
		return fmt.Errorf("failed to add device to instance set: %w", err)
	}
	r.client.Expire(ctx, instanceKey, r.ttl*2)

	return nil
}

// UnregisterDevice releases a device owned by this instance. A record owned
// by another instance is left alone: the device already moved on.
func (r *SharedDeviceRegistry) UnregisterDevice(ctx context.Context, deviceID domain.DeviceID) error {
	key := r.deviceKey(deviceID)

	data, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get device record: %w", err)
	}

	var record deviceRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return fmt.Errorf("failed to unmarshal device record: %w", err)
	}
	if record.InstanceID != r.instanceID {
		return nil
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, r.instanceDevicesKey(r.instanceID), string(deviceID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to unregister device: %w", err)
	}
	return nil
}

// Touch refreshes the registration TTL for a device still owned here.
func (r *SharedDeviceRegistry) Touch(ctx context.Context, deviceID domain.DeviceID) {
	r.client.Expire(ctx, r.deviceKey(deviceID), r.ttl)
}

// OwnerInstance returns the instance currently holding the device, or empty
// if the device is not registered anywhere.
func (r *SharedDeviceRegistry) OwnerInstance(ctx context.Context, deviceID domain.DeviceID) (string, error) {
	data, err := r.client.Get(ctx, r.deviceKey(deviceID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get device record: %w", err)
	}

	var record deviceRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return "", fmt.Errorf("failed to unmarshal device record: %w", err)
	}
	return record.InstanceID, nil
}

// InstanceDevices lists devices owned by the given instance.
func (r *SharedDeviceRegistry) InstanceDevices(ctx context.Context, instanceID string) ([]domain.DeviceID, error) {
	members, err := r.client.SMembers(ctx, r.instanceDevicesKey(instanceID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list instance devices: %w", err)
	}

	devices := make([]domain.DeviceID, 0, len(members))
	for _, m := range members {
		devices = append(devices, domain.DeviceID(m))
	}
	return devices, nil
}
