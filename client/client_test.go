package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gridironlabs/gridfeed/types"
)

type nopLogger struct{}

func (*nopLogger) Error(string, ...zap.Field)              {}
func (*nopLogger) Warn(string, ...zap.Field)               {}
func (*nopLogger) Info(string, ...zap.Field)               {}
func (*nopLogger) Debug(string, ...zap.Field)              {}
func (*nopLogger) Log(zapcore.Level, string, ...zap.Field) {}

func newTestSource(baseURL string) *types.SourceConfig {
	return &types.SourceConfig{
		Name:         "espn",
		BaseURL:      baseURL,
		APIKey:       "secret",
		APIKeyHeader: "X-API-Key",
		Tier:         "primary",
		Timeout:      2 * time.Second,
		DataTypes:    []string{types.DataTypeOdds},
	}
}

func TestCallDecodesJSONAndSendsAPIKey(t *testing.T) {
	var gotKey, gotPath, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"games":[{"home":"KC","away":"BUF"}]}`))
	}))
	defer server.Close()

	client := NewSourceClient(context.Background(), &nopLogger{})
	data, err := client.Call(context.Background(), newTestSource(server.URL), "/odds", map[string]string{
		"week":   "12",
		"season": "2025",
	})

	require.NoError(t, err)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "/odds", gotPath)
	assert.Equal(t, "season=2025&week=12", gotQuery)

	payload, ok := data.(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, payload, "games")
}

func TestCallClassifiesStatusCodes(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		sentinel error
	}{
		{"rate limited", http.StatusTooManyRequests, types.ErrRateLimited},
		{"unauthorized", http.StatusUnauthorized, types.ErrAuthentication},
		{"forbidden", http.StatusForbidden, types.ErrAuthentication},
		{"server error", http.StatusInternalServerError, types.ErrAPIUnavailable},
		{"bad gateway", http.StatusBadGateway, types.ErrAPIUnavailable},
		{"not found", http.StatusNotFound, types.ErrAPIUnavailable},
		{"request timeout", http.StatusRequestTimeout, types.ErrTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			client := NewSourceClient(context.Background(), &nopLogger{})
			_, err := client.Call(context.Background(), newTestSource(server.URL), "/odds", nil)

			require.Error(t, err)
			assert.True(t, types.IsError(err, tt.sentinel), "expected %v, got %v", tt.sentinel, err)
		})
	}
}

func TestCallRejectsMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"games": [`))
	}))
	defer server.Close()

	client := NewSourceClient(context.Background(), &nopLogger{})
	_, err := client.Call(context.Background(), newTestSource(server.URL), "/odds", nil)

	require.Error(t, err)
	assert.True(t, types.IsError(err, types.ErrInvalidData))
}

func TestCallRejectsEmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	client := NewSourceClient(context.Background(), &nopLogger{})
	_, err := client.Call(context.Background(), newTestSource(server.URL), "/odds", nil)

	require.Error(t, err)
	assert.True(t, types.IsError(err, types.ErrInvalidData))
}

func TestCallUnreachableHostIsNetworkError(t *testing.T) {
	client := NewSourceClient(context.Background(), &nopLogger{})
	source := newTestSource("http://127.0.0.1:1")
	source.Timeout = 500 * time.Millisecond

	_, err := client.Call(context.Background(), source, "/odds", nil)

	require.Error(t, err)
	assert.True(t, types.IsError(err, types.ErrNetwork) || types.IsError(err, types.ErrTimeout))
}

func TestCallHonorsContextDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := NewSourceClient(context.Background(), &nopLogger{})
	_, err := client.Call(ctx, newTestSource(server.URL), "/odds", nil)

	require.Error(t, err)
	assert.True(t, types.IsError(err, types.ErrTimeout) || types.IsError(err, types.ErrNetwork))
}

func TestBuildURL(t *testing.T) {
	assert.Equal(t, "https://api.example.com/v1/odds",
		buildURL("https://api.example.com/", "v1/odds", nil))
	assert.Equal(t, "https://api.example.com/v1/odds?a=1&b=2",
		buildURL("https://api.example.com", "/v1/odds", map[string]string{"b": "2", "a": "1"}))
}
