package alerts

import (
	"bytes"
	"context"
	"database/sql"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/gridironlabs/gridfeed/types"
	"github.com/gridironlabs/gridfeed/utils"
)

const (
	defaultDeliveryTimeout = 10 * time.Second
	defaultMaxRetries      = 2
	retryBackoff           = time.Second
)

// Dispatcher stores webhook subscriptions in SQLite and POSTs source-health
// transition events to them. Deliveries run in their own goroutines so the
// health tracker never blocks on a slow webhook endpoint.
type Dispatcher struct {
	logger  types.Logger
	metrics types.MetricsManager
	config  *types.AlertsConfig

	db     *sql.DB
	client *http.Client

	state   int32
	pending sync.WaitGroup

	timeout    time.Duration
	maxRetries int
}

type transitionPayload struct {
	Event     string                  `json:"event"`
	Source    string                  `json:"source"`
	From      types.SourceHealth      `json:"from"`
	To        types.SourceHealth      `json:"to"`
	State     types.SourceHealthState `json:"state"`
	Timestamp time.Time               `json:"timestamp"`
}

func NewDispatcher(logger types.Logger, metrics types.MetricsManager, config *types.AlertsConfig) (*Dispatcher, error) {
	if config == nil || !config.Enabled {
		return nil, types.ErrAlertsDisabled
	}

	dbPath := config.DBPath
	if dbPath == "" {
		dbPath = "./alerts.db"
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, types.WrapError(err, "failed to open alerts database")
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultDeliveryTimeout
	}

	maxRetries := config.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	dispatcher := &Dispatcher{
		logger:     logger,
		metrics:    metrics,
		config:     config,
		db:         db,
		client:     &http.Client{Timeout: timeout},
		timeout:    timeout,
		maxRetries: maxRetries,
	}

	if err := dispatcher.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return dispatcher, nil
}

func (d *Dispatcher) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS webhooks (
		id TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		events TEXT,
		created_at TIMESTAMP NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_webhooks_url ON webhooks(url);
	`

	if _, err := d.db.Exec(schema); err != nil {
		return types.WrapError(err, "failed to create webhooks table")
	}
	return nil
}

func (d *Dispatcher) Start() error {
	if !atomic.CompareAndSwapInt32(&d.state, 0, 1) {
		return types.ErrServerAlreadyRunning
	}

	d.logger.Info("alert dispatcher started")
	return nil
}

func (d *Dispatcher) Stop() error {
	if !atomic.CompareAndSwapInt32(&d.state, 1, 0) {
		return types.ErrServerNotRunning
	}

	d.pending.Wait()

	if err := d.db.Close(); err != nil {
		d.logger.Error("failed to close alerts database", zap.Error(err))
		return err
	}

	d.logger.Info("alert dispatcher stopped")
	return nil
}

func (d *Dispatcher) IsRunning() bool {
	return atomic.LoadInt32(&d.state) == 1
}

func (d *Dispatcher) Register(ctx context.Context, rawURL string, events []string) (*types.WebhookSubscription, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, types.Errorf(types.ErrWebhookURLInvalid, "%q", rawURL)
	}

	subscription := &types.WebhookSubscription{
		ID:        uuid.NewString(),
		URL:       rawURL,
		Events:    events,
		CreatedAt: time.Now().UTC(),
	}

	eventsJSON, err := utils.Marshal(subscription.Events)
	if err != nil {
		return nil, types.WrapError(err, "failed to encode webhook events")
	}

	_, err = d.db.ExecContext(ctx,
		`INSERT INTO webhooks (id, url, events, created_at) VALUES (?, ?, ?, ?)`,
		subscription.ID, subscription.URL, string(eventsJSON), subscription.CreatedAt)
	if err != nil {
		return nil, types.WrapError(err, "failed to insert webhook")
	}

	d.logger.Info("webhook registered",
		zap.String("id", subscription.ID),
		zap.String("url", subscription.URL))

	return subscription, nil
}

func (d *Dispatcher) Unregister(ctx context.Context, id string) error {
	result, err := d.db.ExecContext(ctx, `DELETE FROM webhooks WHERE id = ?`, id)
	if err != nil {
		return types.WrapError(err, "failed to delete webhook")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return types.WrapError(err, "failed to get rows affected")
	}
	if affected == 0 {
		return types.ErrWebhookNotFound
	}

	d.logger.Info("webhook unregistered", zap.String("id", id))
	return nil
}

func (d *Dispatcher) List(ctx context.Context) ([]*types.WebhookSubscription, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, url, events, created_at FROM webhooks ORDER BY created_at DESC`)
	if err != nil {
		return nil, types.WrapError(err, "failed to query webhooks")
	}
	defer func() {
		if err := rows.Close(); err != nil {
			d.logger.Error("failed to close webhook rows", zap.Error(err))
		}
	}()

	var subscriptions []*types.WebhookSubscription
	for rows.Next() {
		subscription := &types.WebhookSubscription{}
		var eventsJSON string

		if err := rows.Scan(&subscription.ID, &subscription.URL, &eventsJSON, &subscription.CreatedAt); err != nil {
			return nil, types.WrapError(err, "failed to scan webhook")
		}

		if eventsJSON != "" {
			if err := utils.Unmarshal([]byte(eventsJSON), &subscription.Events); err != nil {
				d.logger.Warn("failed to parse webhook events",
					zap.String("id", subscription.ID), zap.Error(err))
			}
		}

		subscriptions = append(subscriptions, subscription)
	}

	return subscriptions, rows.Err()
}

// HealthTransition implements types.HealthTransitionSink. The tracker already
// deduplicates transitions, so every call here is worth delivering.
func (d *Dispatcher) HealthTransition(source string, from, to types.SourceHealth, state types.SourceHealthState) {
	if !d.IsRunning() {
		return
	}

	subscriptions, err := d.List(context.Background())
	if err != nil {
		d.logger.Error("failed to load webhooks for health transition", zap.Error(err))
		return
	}

	payload := transitionPayload{
		Event:     "source_health_transition",
		Source:    source,
		From:      from,
		To:        to,
		State:     state,
		Timestamp: time.Now().UTC(),
	}

	body, err := utils.Marshal(payload)
	if err != nil {
		d.logger.Error("failed to encode health transition payload", zap.Error(err))
		return
	}

	for _, subscription := range subscriptions {
		if !subscribedTo(subscription.Events, string(to)) {
			continue
		}

		sub := subscription
		d.pending.Add(1)
		go func() {
			defer d.pending.Done()
			d.deliver(sub, body)
		}()
	}
}

func (d *Dispatcher) deliver(subscription *types.WebhookSubscription, body []byte) {
	start := time.Now()

	var lastErr error
	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(retryBackoff)
		}

		if lastErr = d.post(subscription.URL, body); lastErr == nil {
			d.recordDelivery("success", time.Since(start))
			d.logger.Debug("webhook delivered",
				zap.String("id", subscription.ID),
				zap.Int("attempt", attempt+1))
			return
		}
	}

	d.recordDelivery("error", time.Since(start))
	d.logger.Error("webhook delivery failed",
		zap.String("id", subscription.ID),
		zap.String("url", subscription.URL),
		zap.Error(lastErr))
}

func (d *Dispatcher) post(rawURL string, body []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(body))
	if err != nil {
		return types.WrapError(err, "failed to build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "gridfeed-alerts/1.0")

	resp, err := d.client.Do(req)
	if err != nil {
		return types.WrapError(err, "webhook request failed")
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			d.logger.Error("failed to close webhook response body", zap.Error(err))
		}
	}()

	if resp.StatusCode >= 400 {
		return types.NewErrorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (d *Dispatcher) recordDelivery(result string, duration time.Duration) {
	if d.metrics == nil {
		return
	}

	d.metrics.Counter("webhook_deliveries_total", map[string]string{
		"result": result,
	}).Inc()

	d.metrics.Histogram("webhook_delivery_duration_seconds",
		[]float64{0.01, 0.1, 0.5, 1.0, 5.0, 10.0},
		map[string]string{"result": result},
	).Observe(duration.Seconds())
}

func subscribedTo(events []string, event string) bool {
	if len(events) == 0 {
		return true
	}
	for _, e := range events {
		if e == event || e == "*" {
			return true
		}
	}
	return false
}
