package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dejely/manobela/internal/core/domain"
	"github.com/dejely/manobela/internal/core/ports"
	"github.com/dejely/manobela/internal/core/services"
	"github.com/dejely/manobela/internal/infrastructure/monitoring"
	"github.com/dejely/manobela/internal/infrastructure/repositories/memory"
	"github.com/dejely/manobela/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubTransport struct {
	mu     sync.Mutex
	status domain.TransportStatus
}

func (t *stubTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = domain.TransportOpen
	return nil
}

func (t *stubTransport) Send(msg domain.SignalMessage) error { return nil }

func (t *stubTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = domain.TransportClosed
	return nil
}

func (t *stubTransport) Status() domain.TransportStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *stubTransport) OnMessage(fn func(msg domain.SignalMessage))            {}
func (t *stubTransport) OnStatusChange(fn func(status domain.TransportStatus)) {}

type stubPeer struct{}

func (stubPeer) StartConnection(ctx context.Context) error                  { return nil }
func (stubPeer) HandleAnswer(answer webrtc.SessionDescription) error        { return nil }
func (stubPeer) HandleRemoteCandidate(c domain.ICECandidateInit) error      { return nil }
func (stubPeer) SendControl(msg domain.ControlMessage) error                { return nil }
func (stubPeer) SetMediaEnabled(enabled bool)                               {}
func (stubPeer) Cleanup()                                                   {}
func (stubPeer) ConnectionStatus() domain.ConnectionStatus                  { return domain.ConnectionNew }
func (stubPeer) DataChannelState() domain.DataChannelState                  { return domain.DataChannelClosed }
func (stubPeer) Connected() bool                                            { return false }
func (stubPeer) SubscribeInference(fn func(domain.InferenceData)) func()    { return func() {} }
func (stubPeer) OnConnectionStateChange(fn func(domain.ConnectionStatus))   {}

type stubSpeaker struct{}

func (stubSpeaker) Speak(ctx context.Context, message string) error { return nil }

type handlerFixture struct {
	router   *gin.Engine
	sessions ports.SessionRepository
	metrics  ports.MetricRepository
	logger   *services.SessionLogger
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	nop := zap.NewNop().Sugar()
	sessions := memory.NewMemorySessionRepository()
	metrics := memory.NewMemoryMetricRepository()

	sessionLogger := services.NewSessionLogger(services.SessionLoggerConfig{
		LogInterval:   time.Minute,
		FlushInterval: time.Minute,
		MaxBufferSize: 100,
	}, sessions, metrics, nil, nop)
	t.Cleanup(sessionLogger.Stop)

	alerts := services.NewAlertManager(domain.DefaultAlertConfigs(), stubSpeaker{}, nil, nop)
	controller := services.NewSessionController(&stubTransport{status: domain.TransportClosed}, stubPeer{}, sessionLogger, alerts, nil, nop)
	controller.Bind()
	t.Cleanup(func() { controller.Shutdown(context.Background()) })

	handler := NewMonitorHandler(controller, sessionLogger, sessions, metrics, monitoring.NewHealthChecker())

	router := gin.New()
	handler.SetupRoutes(router)

	return &handlerFixture{
		router:   router,
		sessions: sessions,
		metrics:  metrics,
		logger:   sessionLogger,
	}
}

func (f *handlerFixture) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *handlerFixture) seedSession(t *testing.T, metricRows int) string {
	t.Helper()
	id := utils.GenerateRecordID()
	require.NoError(t, f.sessions.Create(context.Background(), &domain.Session{
		ID:        id,
		ClientID:  "client-1",
		StartedAt: time.Now().UnixMilli(),
	}))

	rows := make([]*domain.Metric, 0, metricRows)
	for i := 0; i < metricRows; i++ {
		rows = append(rows, &domain.Metric{
			ID:        utils.GenerateRecordID(),
			SessionID: id,
			Timestamp: time.Now().UnixMilli(),
		})
	}
	require.NoError(t, f.metrics.InsertBatch(context.Background(), rows))
	return id
}

func TestMonitorHandler_Health(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(t, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestMonitorHandler_GetStatus(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/session")
	assert.Equal(t, http.StatusOK, w.Code)

	var status services.ControllerStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, domain.StateIdle, status.State)
}

func TestMonitorHandler_StartAccepted(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/session/start")
	assert.Equal(t, http.StatusAccepted, w.Code)

	var status services.ControllerStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, domain.StateStarting, status.State)
}

func TestMonitorHandler_PauseWhileIdleConflicts(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/session/pause")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestMonitorHandler_StopWhileIdleConflicts(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/session/stop")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestMonitorHandler_RecalibrateWithoutChannel(t *testing.T) {
	f := newHandlerFixture(t)

	// Closed data channel makes recalibration a no-op, not an error.
	w := f.do(t, http.MethodPost, "/api/v1/session/recalibrate")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMonitorHandler_LatestInferenceEmpty(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/inference/latest")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMonitorHandler_ListSessions(t *testing.T) {
	f := newHandlerFixture(t)
	f.seedSession(t, 3)

	w := f.do(t, http.MethodGet, "/api/v1/sessions")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Sessions []struct {
			Session     *domain.Session `json:"session"`
			MetricCount int64           `json:"metric_count"`
		} `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Sessions, 1)
	assert.Equal(t, int64(3), body.Sessions[0].MetricCount)
}

func TestMonitorHandler_GetSessionMetrics(t *testing.T) {
	f := newHandlerFixture(t)
	id := f.seedSession(t, 2)

	w := f.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/metrics")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		SessionID string           `json:"session_id"`
		Metrics   []*domain.Metric `json:"metrics"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, id, body.SessionID)
	assert.Len(t, body.Metrics, 2)
}

func TestMonitorHandler_GetSessionMetrics_BadID(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/sessions/not-a-uuid/metrics")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMonitorHandler_GetSessionMetrics_Unknown(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/sessions/"+utils.GenerateRecordID()+"/metrics")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMonitorHandler_ClearSessions(t *testing.T) {
	f := newHandlerFixture(t)
	id := f.seedSession(t, 2)

	w := f.do(t, http.MethodDelete, "/api/v1/sessions")
	require.Equal(t, http.StatusOK, w.Code)

	sessions, err := f.sessions.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sessions)

	count, err := f.metrics.CountBySession(context.Background(), id)
	require.NoError(t, err)
	assert.Zero(t, count)

	// The logger is writable again after the wipe.
	_, err = f.logger.StartSession(context.Background(), "client-2")
	assert.NoError(t, err)
}
