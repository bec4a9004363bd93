package alerts

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gridironlabs/gridfeed/types"
	"github.com/gridironlabs/gridfeed/utils"
)

type nopLogger struct{}

func (*nopLogger) Error(string, ...zap.Field)              {}
func (*nopLogger) Warn(string, ...zap.Field)               {}
func (*nopLogger) Info(string, ...zap.Field)               {}
func (*nopLogger) Debug(string, ...zap.Field)              {}
func (*nopLogger) Log(zapcore.Level, string, ...zap.Field) {}

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()

	dispatcher, err := NewDispatcher(&nopLogger{}, nil, &types.AlertsConfig{
		Enabled:    true,
		DBPath:     filepath.Join(t.TempDir(), "alerts.db"),
		Timeout:    time.Second,
		MaxRetries: 1,
	})
	require.NoError(t, err)
	require.NoError(t, dispatcher.Start())
	t.Cleanup(func() { _ = dispatcher.Stop() })

	return dispatcher
}

type capturingServer struct {
	*httptest.Server
	mu       sync.Mutex
	payloads []transitionPayload
}

func newCapturingServer(t *testing.T) *capturingServer {
	t.Helper()

	server := &capturingServer{}
	server.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var payload transitionPayload
		require.NoError(t, utils.Unmarshal(body, &payload))

		server.mu.Lock()
		server.payloads = append(server.payloads, payload)
		server.mu.Unlock()
	}))
	t.Cleanup(server.Close)

	return server
}

func (s *capturingServer) received() []transitionPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]transitionPayload(nil), s.payloads...)
}

func TestRegisterAndList(t *testing.T) {
	dispatcher := newTestDispatcher(t)

	subscription, err := dispatcher.Register(context.Background(), "http://example.com/hook", []string{"offline"})
	require.NoError(t, err)
	assert.NotEmpty(t, subscription.ID)

	subscriptions, err := dispatcher.List(context.Background())
	require.NoError(t, err)
	require.Len(t, subscriptions, 1)
	assert.Equal(t, "http://example.com/hook", subscriptions[0].URL)
	assert.Equal(t, []string{"offline"}, subscriptions[0].Events)
}

func TestRegisterRejectsInvalidURL(t *testing.T) {
	dispatcher := newTestDispatcher(t)

	_, err := dispatcher.Register(context.Background(), "not-a-url", nil)
	assert.ErrorIs(t, err, types.ErrWebhookURLInvalid)
}

func TestUnregister(t *testing.T) {
	dispatcher := newTestDispatcher(t)

	subscription, err := dispatcher.Register(context.Background(), "http://example.com/hook", nil)
	require.NoError(t, err)

	require.NoError(t, dispatcher.Unregister(context.Background(), subscription.ID))

	subscriptions, err := dispatcher.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, subscriptions)

	assert.ErrorIs(t, dispatcher.Unregister(context.Background(), subscription.ID), types.ErrWebhookNotFound)
}

func TestHealthTransitionDelivers(t *testing.T) {
	dispatcher := newTestDispatcher(t)
	server := newCapturingServer(t)

	_, err := dispatcher.Register(context.Background(), server.URL, nil)
	require.NoError(t, err)

	dispatcher.HealthTransition("espn", types.SourceHealthy, types.SourceOffline, types.SourceHealthState{
		Source: "espn",
		Health: types.SourceOffline,
	})

	require.Eventually(t, func() bool {
		return len(server.received()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	payload := server.received()[0]
	assert.Equal(t, "source_health_transition", payload.Event)
	assert.Equal(t, "espn", payload.Source)
	assert.Equal(t, types.SourceOffline, payload.To)
}

func TestHealthTransitionFiltersByEvent(t *testing.T) {
	dispatcher := newTestDispatcher(t)
	server := newCapturingServer(t)

	_, err := dispatcher.Register(context.Background(), server.URL, []string{"offline"})
	require.NoError(t, err)

	dispatcher.HealthTransition("espn", types.SourceHealthy, types.SourceDegraded, types.SourceHealthState{})
	dispatcher.HealthTransition("espn", types.SourceDegraded, types.SourceOffline, types.SourceHealthState{})

	require.Eventually(t, func() bool {
		return len(server.received()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	payloads := server.received()
	require.Len(t, payloads, 1)
	assert.Equal(t, types.SourceOffline, payloads[0].To)
}

func TestDispatcherDisabled(t *testing.T) {
	_, err := NewDispatcher(&nopLogger{}, nil, &types.AlertsConfig{Enabled: false})
	assert.ErrorIs(t, err, types.ErrAlertsDisabled)
}
