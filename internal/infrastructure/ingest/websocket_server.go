package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"soctel/internal/core/domain"
	"soctel/internal/core/ports"
	"soctel/internal/infrastructure/distributed"
	"soctel/internal/infrastructure/monitoring"
	apperrors "soctel/pkg/errors"
	"soctel/pkg/validation"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// WebSocketServer is the device-facing ingress. Each connection speaks a
// small JSON protocol: a handshake first, then sample_batch and live_metric
// messages for as long as the session runs. Unknown kinds are ignored so
// newer agents can talk to older servers.
type WebSocketServer struct {
	registry  ports.RegistryService
	collector *monitoring.PrometheusCollector
	shared    *distributed.SharedDeviceRegistry
	events    *distributed.EventBus

	connections map[domain.DeviceID]*websocket.Conn
	mu          sync.RWMutex

	pingInterval time.Duration
	pongTimeout  time.Duration
	writeTimeout time.Duration

	messagesPerSecond float64
	burst             int
	maxMessageSize    int64

	logger *zap.SugaredLogger
}

type IngressMessage struct {
	Kind    string          `json:"kind"`
	Token   string          `json:"token,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type HandshakePayload struct {
	Serial             string `json:"serial"`
	Label              string `json:"label"`
	Model              string `json:"model"`
	ReportsTemperature bool   `json:"reports_temperature"`
	ReportsGPU         bool   `json:"reports_gpu"`
}

type HandshakeAck struct {
	Kind     string          `json:"kind"`
	DeviceID domain.DeviceID `json:"device_id"`
	Token    string          `json:"token"`
}

type SampleBatchPayload struct {
	Samples []domain.Sample `json:"samples"`
}

func NewWebSocketServer(
	registry ports.RegistryService,
	collector *monitoring.PrometheusCollector,
	logger *zap.SugaredLogger,
) *WebSocketServer {
	return &WebSocketServer{
		registry:          registry,
		collector:         collector,
		connections:       make(map[domain.DeviceID]*websocket.Conn),
		pingInterval:      30 * time.Second,
		pongTimeout:       60 * time.Second,
		writeTimeout:      10 * time.Second,
		messagesPerSecond: 100,
		burst:             200,
		maxMessageSize:    64 * 1024,
		logger:            logger,
	}
}

// SetPingInterval sets ping interval for WebSocket connections
func (s *WebSocketServer) SetPingInterval(interval time.Duration) {
	s.pingInterval = interval
}

// SetPongTimeout sets pong timeout for WebSocket connections
func (s *WebSocketServer) SetPongTimeout(timeout time.Duration) {
	s.pongTimeout = timeout
}

// SetRateLimit sets the per-connection ingress message rate.
func (s *WebSocketServer) SetRateLimit(messagesPerSecond float64, burst int) {
	s.messagesPerSecond = messagesPerSecond
	s.burst = burst
}

// SetMaxMessageSize caps the size of a single ingress message. A message
// over the cap closes the connection.
func (s *WebSocketServer) SetMaxMessageSize(bytes int64) {
	s.maxMessageSize = bytes
}

// SetSharedRegistry enables cross-instance device ownership tracking.
func (s *WebSocketServer) SetSharedRegistry(shared *distributed.SharedDeviceRegistry) {
	s.shared = shared
}

// SetEventBus enables cross-instance connect/disconnect events.
func (s *WebSocketServer) SetEventBus(events *distributed.EventBus) {
	s.events = events
}

func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(s.maxMessageSize)

	device, err := s.awaitHandshake(r.Context(), conn)
	if err != nil {
		s.logger.Warnw("handshake failed", "remote", r.RemoteAddr, "error", err)
		s.sendError(conn, err.Error())
		return
	}
	deviceID := device.ID

	s.mu.Lock()
	existingConn, isReconnect := s.connections[deviceID]
	if isReconnect && existingConn != nil {
		existingConn.Close()
		s.logger.Infow("closing old connection for reconnecting device", "device_id", deviceID)
	}
	s.connections[deviceID] = conn
	s.mu.Unlock()

	if !isReconnect {
		s.collector.RecordDeviceConnected()
	}
	if s.shared != nil {
		if err := s.shared.RegisterDevice(context.Background(), device); err != nil {
			s.logger.Warnw("shared registry registration failed", "device_id", deviceID, "error", err)
		}
	}
	if s.events != nil {
		if err := s.events.PublishDeviceConnected(context.Background(), deviceID); err != nil {
			s.logger.Warnw("failed to publish connect event", "device_id", deviceID, "error", err)
		}
	}
	s.logger.Infow("device connected", "device_id", deviceID, "reconnect", isReconnect)

	conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
		return nil
	})

	pingTicker := time.NewTicker(s.pingInterval)
	defer pingTicker.Stop()

	limiter := rate.NewLimiter(rate.Limit(s.messagesPerSecond), s.burst)

	messageChan := make(chan IngressMessage, 10)
	errorChan := make(chan error, 1)

	go func() {
		for {
			var msg IngressMessage
			if err := conn.ReadJSON(&msg); err != nil {
				errorChan <- err
				return
			}
			conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
			messageChan <- msg
		}
	}()

	for {
		select {
		case msg := <-messageChan:
			if !limiter.Allow() {
				s.collector.RecordSampleRejected()
				s.sendError(conn, "rate limit exceeded")
				continue
			}
			if err := s.handleMessage(context.Background(), deviceID, msg); err != nil {
				s.logger.Infow("error handling device message",
					"device_id", deviceID, "kind", msg.Kind, "error", err)
				s.sendError(conn, err.Error())
			}

		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Infow("error sending ping", "device_id", deviceID, "error", err)
				goto cleanup
			}

		case err := <-errorChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Infow("error reading device message", "device_id", deviceID, "error", err)
			}
			goto cleanup
		}
	}

cleanup:
	s.mu.Lock()
	if s.connections[deviceID] == conn {
		delete(s.connections, deviceID)
	}
	s.mu.Unlock()

	s.collector.RecordDeviceDisconnected()
	if s.shared != nil {
		if err := s.shared.UnregisterDevice(context.Background(), deviceID); err != nil {
			s.logger.Warnw("shared registry unregistration failed", "device_id", deviceID, "error", err)
		}
	}
	if s.events != nil {
		if err := s.events.PublishDeviceDisconnected(context.Background(), deviceID); err != nil {
			s.logger.Warnw("failed to publish disconnect event", "device_id", deviceID, "error", err)
		}
	}
	if err := s.registry.Disconnect(context.Background(), deviceID); err != nil {
		s.logger.Infow("error recording disconnect", "device_id", deviceID, "error", err)
	}

	s.logger.Infow("device disconnected", "device_id", deviceID)
}

// awaitHandshake reads the first message of a fresh connection. A device
// presenting a token resumes its prior identity, otherwise the handshake
// payload registers it anew.
func (s *WebSocketServer) awaitHandshake(ctx context.Context, conn *websocket.Conn) (*domain.Device, error) {
	conn.SetReadDeadline(time.Now().Add(s.pongTimeout))

	var msg IngressMessage
	if err := conn.ReadJSON(&msg); err != nil {
		return nil, err
	}
	if msg.Kind != "handshake" {
		return nil, apperrors.NewInvalidInputError("first message must be a handshake")
	}

	if msg.Token != "" {
		device, err := s.registry.ResumeDevice(ctx, msg.Token)
		if err == nil {
			ack := HandshakeAck{Kind: "handshake_ack", DeviceID: device.ID, Token: msg.Token}
			conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			return device, conn.WriteJSON(ack)
		}
		s.logger.Infow("device token rejected, registering anew", "error", err)
	}

	var payload HandshakePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		s.collector.RecordMalformedMessage()
		return nil, apperrors.NewInvalidInputError("invalid handshake payload")
	}
	if err := validation.ValidateLabel(payload.Label); err != nil {
		s.collector.RecordMalformedMessage()
		return nil, apperrors.NewInvalidInputError(err.Error())
	}

	device, token, err := s.registry.Handshake(ctx, domain.DeviceInfo{
		Serial:             payload.Serial,
		Label:              payload.Label,
		Model:              payload.Model,
		ReportsTemperature: payload.ReportsTemperature,
		ReportsGPU:         payload.ReportsGPU,
	})
	if err != nil {
		return nil, err
	}

	ack := HandshakeAck{Kind: "handshake_ack", DeviceID: device.ID, Token: token}
	conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return device, conn.WriteJSON(ack)
}

func (s *WebSocketServer) handleMessage(ctx context.Context, deviceID domain.DeviceID, msg IngressMessage) error {
	switch msg.Kind {
	case "sample_batch":
		return s.handleSampleBatch(ctx, deviceID, msg)
	case "live_metric":
		return s.handleLiveMetric(ctx, deviceID, msg)
	case "snapshot_info":
		return s.handleSnapshotInfo(ctx, deviceID, msg)
	case "handshake":
		return apperrors.NewInvalidInputError("duplicate handshake")
	default:
		s.logger.Debugw("ignoring unknown message kind", "device_id", deviceID, "kind", msg.Kind)
		return nil
	}
}

func (s *WebSocketServer) handleSampleBatch(ctx context.Context, deviceID domain.DeviceID, msg IngressMessage) error {
	var payload SampleBatchPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		s.collector.RecordMalformedMessage()
		return apperrors.NewInvalidInputError("invalid sample_batch payload")
	}

	for _, sample := range payload.Samples {
		sample.Source = domain.SourceBatch
		if err := s.routeSample(ctx, deviceID, sample); err != nil {
			return err
		}
	}
	return nil
}

func (s *WebSocketServer) handleLiveMetric(ctx context.Context, deviceID domain.DeviceID, msg IngressMessage) error {
	var sample domain.Sample
	if err := json.Unmarshal(msg.Payload, &sample); err != nil {
		s.collector.RecordMalformedMessage()
		return apperrors.NewInvalidInputError("invalid live_metric payload")
	}
	sample.Source = domain.SourceLive
	return s.routeSample(ctx, deviceID, sample)
}

func (s *WebSocketServer) routeSample(ctx context.Context, deviceID domain.DeviceID, sample domain.Sample) error {
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now()
	}
	if err := s.registry.Route(ctx, deviceID, sample); err != nil {
		s.collector.RecordSampleRejected()
		return err
	}
	s.collector.RecordSampleIngested()
	return nil
}

func (s *WebSocketServer) handleSnapshotInfo(ctx context.Context, deviceID domain.DeviceID, msg IngressMessage) error {
	var payload HandshakePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		s.collector.RecordMalformedMessage()
		return apperrors.NewInvalidInputError("invalid snapshot_info payload")
	}
	return s.registry.UpdateCapabilities(ctx, deviceID, domain.DeviceInfo{
		Serial:             payload.Serial,
		Label:              payload.Label,
		Model:              payload.Model,
		ReportsTemperature: payload.ReportsTemperature,
		ReportsGPU:         payload.ReportsGPU,
	})
}

func (s *WebSocketServer) sendError(conn *websocket.Conn, message string) {
	errorMsg := map[string]interface{}{
		"kind":    "error",
		"message": message,
	}
	conn.WriteJSON(errorMsg)
}

func (s *WebSocketServer) HealthCheck(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	connectionCount := len(s.connections)
	s.mu.RUnlock()

	response := map[string]interface{}{
		"status":      "healthy",
		"timestamp":   time.Now().Unix(),
		"connections": connectionCount,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (s *WebSocketServer) ConnectedDevices() []domain.DeviceID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	devices := make([]domain.DeviceID, 0, len(s.connections))
	for deviceID := range s.connections {
		devices = append(devices, deviceID)
	}
	return devices
}

func (s *WebSocketServer) IsDeviceConnected(deviceID domain.DeviceID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.connections[deviceID]
	return exists
}
