package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"soctel/internal/core/domain"
	"soctel/internal/core/ports"
	"soctel/internal/infrastructure/broadcast"
	apperrors "soctel/pkg/errors"
	"soctel/pkg/utils"
	"soctel/pkg/validation"
)

var subscribeUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
}

type SessionHandler struct {
	sessionService ports.SessionService
	exportService  ports.ExportService
	registry       ports.RegistryService
	samples        ports.SampleRepository
	bus            *broadcast.SnapshotBus
	logger         *zap.SugaredLogger
}

func NewSessionHandler(
	sessionService ports.SessionService,
	exportService ports.ExportService,
	registry ports.RegistryService,
	samples ports.SampleRepository,
	bus *broadcast.SnapshotBus,
	logger *zap.SugaredLogger,
) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		exportService:  exportService,
		registry:       registry,
		samples:        samples,
		bus:            bus,
		logger:         logger,
	}
}

func (h *SessionHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.POST("/sessions", h.StartSession)
		api.POST("/sessions/:id/end", h.EndSession)
		api.GET("/sessions/:id", h.GetSession)
		api.GET("/sessions/:id/snapshot", h.GetSnapshot)
		api.GET("/sessions/:id/samples", h.GetSamples)
		api.GET("/sessions/:id/subscribe", h.SubscribeSnapshots)
		api.GET("/sessions/:id/export", h.ExportSession)
		api.GET("/sessions", h.ListSessions)
		api.GET("/devices", h.ListDevices)
	}
}

// sessionIDParam validates the :id path parameter.
func sessionIDParam(c *gin.Context) (domain.SessionID, bool) {
	id := c.Param("id")
	if err := validation.ValidateSessionID(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	return domain.SessionID(id), true
}

func (h *SessionHandler) StartSession(c *gin.Context) {
	var req struct {
		DeviceID domain.DeviceID `json:"device_id" binding:"required"`
		Scenario string          `json:"scenario"`
	}

	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validation.ValidateDeviceID(string(req.DeviceID)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validation.ValidateScenario(req.Scenario); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.sessionService.Start(c.Request.Context(), req.DeviceID, req.Scenario)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"session": session,
	})
}

func (h *SessionHandler) EndSession(c *gin.Context) {
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	session, err := h.sessionService.End(c.Request.Context(), sessionID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session": session,
	})
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	session, err := h.sessionService.Get(c.Request.Context(), sessionID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session": session,
	})
}

func (h *SessionHandler) GetSnapshot(c *gin.Context) {
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	snapshot, err := h.sessionService.LiveSnapshot(sessionID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"snapshot": snapshot,
	})
}

// GetSamples returns the stored samples of a session, optionally bounded
// by RFC 3339 "from" and "to" query parameters.
func (h *SessionHandler) GetSamples(c *gin.Context) {
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	if _, err := h.sessionService.Get(c.Request.Context(), sessionID); err != nil {
		h.respondError(c, err)
		return
	}

	var tr domain.TimeRange
	if from := c.Query("from"); from != "" {
		t, err := utils.ParseTimestamp(from)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from timestamp: " + from})
			return
		}
		tr.From = t
	}
	if to := c.Query("to"); to != "" {
		t, err := utils.ParseTimestamp(to)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to timestamp: " + to})
			return
		}
		tr.To = t
	}

	samples, err := h.samples.Get(c.Request.Context(), sessionID, tr)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"samples": samples,
		"count":   len(samples),
	})
}

// SubscribeSnapshots upgrades to a websocket and pushes each new snapshot
// of the session until the session ends or the client goes away.
func (h *SessionHandler) SubscribeSnapshots(c *gin.Context) {
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	if _, err := h.sessionService.Get(c.Request.Context(), sessionID); err != nil {
		h.respondError(c, err)
		return
	}

	conn, err := subscribeUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorw("subscribe upgrade failed", "session_id", sessionID, "error", err)
		return
	}
	defer conn.Close()

	sub := h.bus.Subscribe(sessionID)
	defer h.bus.Unsubscribe(sub)

	// Drain client messages so close frames are processed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case snapshot, ok := <-sub.C:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
					time.Now().Add(time.Second))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(snapshot); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (h *SessionHandler) ExportSession(c *gin.Context) {
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}
	format := c.DefaultQuery("format", "json")

	switch format {
	case "json":
		data, err := h.exportService.ExportJSON(c.Request.Context(), sessionID)
		if err != nil {
			h.respondError(c, err)
			return
		}
		name := h.exportService.FileName("session_export", "json")
		c.Header("Content-Disposition", "attachment; filename="+name)
		c.Data(http.StatusOK, "application/json", data)

	case "csv":
		data, err := h.exportService.ExportCSV(c.Request.Context(), sessionID)
		if err != nil {
			h.respondError(c, err)
			return
		}
		name := h.exportService.FileName("session_export", "csv")
		c.Header("Content-Disposition", "attachment; filename="+name)
		c.Data(http.StatusOK, "text/csv", data)

	case "text":
		report, err := h.exportService.TextReport(c.Request.Context(), sessionID)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.String(http.StatusOK, report)

	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported format: " + format})
	}
}

func (h *SessionHandler) ListSessions(c *gin.Context) {
	sessions, err := h.sessionService.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (h *SessionHandler) ListDevices(c *gin.Context) {
	devices := h.registry.Devices(c.Request.Context())

	c.JSON(http.StatusOK, gin.H{
		"devices": devices,
		"count":   len(devices),
	})
}

func (h *SessionHandler) respondError(c *gin.Context, err error) {
	if appErr := apperrors.GetAppError(err); appErr != nil {
		c.JSON(appErr.HTTPStatus, gin.H{
			"error":   string(appErr.Code),
			"message": appErr.Message,
		})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
